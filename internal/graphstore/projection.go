package graphstore

import (
	"context"

	"graphrag/internal/theme"
)

// themePlumbingRels are the structural edge types excluded from the Stage 4
// projection: they carry containment and provenance, not topical affinity.
var themePlumbingRels = map[string]bool{
	"CONTAINS":         true,
	"CONTAINS_CLAIM":   true,
	"MENTIONS":         true,
	"EVIDENCE_FROM":    true,
	"BELONGS_TO_THEME": true,
}

// BuildProjection assembles the Stage 4 subgraph for one build: every
// Concept and Claim written under buildVersion, the inter-concept predicate
// and inter-claim relation edges between them, and the per-node text/degree
// members the theme builder labels from.
func (s *Store) BuildProjection(ctx context.Context, buildVersion string) ([]string, []theme.Edge, map[string]theme.Member, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, COALESCE(props->>'name', props->>'text', '')
FROM nodes WHERE build_version=$1 AND label IN ('Concept','Claim')
`, buildVersion)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var nodeIDs []string
	members := map[string]theme.Member{}
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, nil, nil, err
		}
		nodeIDs = append(nodeIDs, id)
		members[id] = theme.Member{ID: id, Text: text}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	edgeRows, err := s.pool.Query(ctx, `
SELECT source, rel, target FROM edges WHERE build_version=$1
`, buildVersion)
	if err != nil {
		return nil, nil, nil, err
	}
	defer edgeRows.Close()

	var edges []theme.Edge
	for edgeRows.Next() {
		var source, rel, target string
		if err := edgeRows.Scan(&source, &rel, &target); err != nil {
			return nil, nil, nil, err
		}
		if themePlumbingRels[rel] {
			continue
		}
		if _, okSrc := members[source]; !okSrc {
			continue
		}
		if _, okDst := members[target]; !okDst {
			continue
		}
		edges = append(edges, theme.Edge{From: source, To: target, Weight: 1})
	}
	if err := edgeRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	for _, e := range edges {
		from := members[e.From]
		from.Degree++
		members[e.From] = from
		to := members[e.To]
		to.Degree++
		members[e.To] = to
	}
	return nodeIDs, edges, members, nil
}

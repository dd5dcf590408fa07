package graphstore

import (
	"context"
	"encoding/json"

	"graphrag/internal/graphmodel"
	"graphrag/internal/query"
)

// SearchThemes implements query.Store: vector search over Theme embeddings,
// resolved back to full Theme rows.
func (s *Store) SearchThemes(ctx context.Context, embedding []float32, topN int) ([]graphmodel.Theme, error) {
	ids, err := s.searchKind(ctx, "theme", embedding, topN)
	if err != nil {
		return nil, err
	}
	var out []graphmodel.Theme
	for _, id := range ids {
		th, ok, err := s.themeByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, th)
		}
	}
	return out, nil
}

// SearchChunks implements query.Store: vector search over Chunk embeddings.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topM int) ([]graphmodel.Chunk, error) {
	ids, err := s.searchKind(ctx, "chunk", embedding, topM)
	if err != nil {
		return nil, err
	}
	var out []graphmodel.Chunk
	for _, id := range ids {
		c, ok, err := s.chunkByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// SearchClaims implements query.Store: vector search over Claim embeddings.
func (s *Store) SearchClaims(ctx context.Context, embedding []float32, topM int) ([]graphmodel.Claim, error) {
	ids, err := s.searchKind(ctx, "claim", embedding, topM)
	if err != nil {
		return nil, err
	}
	var out []graphmodel.Claim
	for _, id := range ids {
		cl, ok, err := s.claimByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cl)
		}
	}
	return out, nil
}

// ThemeMembers implements query.Store: the Concept/Claim ids with a
// BELONGS_TO_THEME edge into themeID.
func (s *Store) ThemeMembers(ctx context.Context, themeID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT source FROM edges WHERE target=$1 AND rel='BELONGS_TO_THEME'`, themeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ExpandClaimRelations implements query.Store: a breadth-first walk of up to
// maxHops hops along outgoing inter-claim relation edges from claimID.
func (s *Store) ExpandClaimRelations(ctx context.Context, claimID string, maxHops int) ([]query.ReasoningStep, error) {
	var steps []query.ReasoningStep
	frontier := []string{claimID}
	seen := map[string]bool{claimID: true}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		rows, err := s.pool.Query(ctx, `
SELECT target, rel FROM edges
WHERE source = ANY($1) AND rel IN ('SUPPORTS','CONTRADICTS','CAUSES','COMPARES_WITH','CONDITIONS')
`, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for rows.Next() {
			var target, rel string
			if err := rows.Scan(&target, &rel); err != nil {
				rows.Close()
				return nil, err
			}
			if seen[target] {
				continue
			}
			seen[target] = true
			steps = append(steps, query.ReasoningStep{ClaimID: target, Relation: graphmodel.ClaimRelationType(rel)})
			next = append(next, target)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		frontier = next
	}
	return steps, nil
}

// ExpandConceptPredicates implements query.Store: a breadth-first walk of up
// to maxHops hops along outgoing concept-to-concept predicate edges from
// conceptID.
func (s *Store) ExpandConceptPredicates(ctx context.Context, conceptID string, maxHops int) ([]graphmodel.ConceptRelation, error) {
	var all []graphmodel.ConceptRelation
	frontier := []string{conceptID}
	seen := map[string]bool{conceptID: true}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		rows, err := s.pool.Query(ctx, `
SELECT e.source, e.rel, e.target, COALESCE((e.props->>'confidence')::float8, 0)
FROM edges e JOIN nodes n ON n.id = e.target
WHERE e.source = ANY($1) AND n.label = 'Concept'
`, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for rows.Next() {
			var rel graphmodel.ConceptRelation
			if err := rows.Scan(&rel.FromConceptID, &rel.Predicate, &rel.ToConceptID, &rel.Confidence); err != nil {
				rows.Close()
				return nil, err
			}
			all = append(all, rel)
			if !seen[rel.ToConceptID] {
				seen[rel.ToConceptID] = true
				next = append(next, rel.ToConceptID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		frontier = next
	}
	return all, nil
}

// ResolveEvidence implements query.Store: the four-level evidence locator
// for a Claim or Concept id. Both node kinds carry an EVIDENCE_FROM edge to
// their source chunk whose props hold the locator fields.
func (s *Store) ResolveEvidence(ctx context.Context, claimOrConceptID string) (query.Evidence, error) {
	var chunkID string
	var props []byte
	err := s.pool.QueryRow(ctx, `
SELECT target, props FROM edges WHERE source=$1 AND rel='EVIDENCE_FROM' LIMIT 1
`, claimOrConceptID).Scan(&chunkID, &props)
	if err != nil {
		return query.Evidence{}, err
	}
	var decoded struct {
		DocID       string   `json:"doc_id"`
		SectionPath []string `json:"section_path"`
		SentenceIDs []string `json:"sentence_ids"`
	}
	if err := json.Unmarshal(props, &decoded); err != nil {
		return query.Evidence{}, err
	}

	var snippet string
	if c, ok, err := s.chunkByID(ctx, chunkID); err == nil && ok {
		snippet = c.ResolvedText
	}

	return query.Evidence{
		DocID:       decoded.DocID,
		ChunkID:     chunkID,
		SectionPath: decoded.SectionPath,
		SentenceIDs: decoded.SentenceIDs,
		Snippet:     snippet,
	}, nil
}

func (s *Store) searchKind(ctx context.Context, kind string, embedding []float32, topK int) ([]string, error) {
	if s.vector == nil {
		return nil, nil
	}
	return s.vector.Search(ctx, kind, embedding, topK)
}

func (s *Store) themeByID(ctx context.Context, id string) (graphmodel.Theme, bool, error) {
	var props []byte
	err := s.pool.QueryRow(ctx, `SELECT props FROM nodes WHERE id=$1 AND label='Theme'`, id).Scan(&props)
	if err != nil {
		return graphmodel.Theme{}, false, nil //nolint:nilerr // not found is not a store failure
	}
	var decoded struct {
		Label       string   `json:"label"`
		Summary     string   `json:"summary"`
		Level       string   `json:"level"`
		Keywords    []string `json:"keywords"`
		CommunityID string   `json:"community_id"`
		MemberCount int      `json:"member_count"`
	}
	if err := json.Unmarshal(props, &decoded); err != nil {
		return graphmodel.Theme{}, false, err
	}
	return graphmodel.Theme{
		ID: id, Label: decoded.Label, Summary: decoded.Summary,
		Level: graphmodel.ThemeLevel(decoded.Level), Keywords: decoded.Keywords,
		CommunityID: decoded.CommunityID, MemberCount: decoded.MemberCount,
	}, true, nil
}

func (s *Store) chunkByID(ctx context.Context, id string) (graphmodel.Chunk, bool, error) {
	var props []byte
	err := s.pool.QueryRow(ctx, `SELECT props FROM nodes WHERE id=$1 AND label='Chunk'`, id).Scan(&props)
	if err != nil {
		return graphmodel.Chunk{}, false, nil //nolint:nilerr // not found is not a store failure
	}
	var decoded struct {
		DocID        string   `json:"doc_id"`
		Text         string   `json:"text"`
		ResolvedText string   `json:"resolved_text"`
		SectionPath  []string `json:"section_path"`
		SentenceIDs  []string `json:"sentence_ids"`
	}
	if err := json.Unmarshal(props, &decoded); err != nil {
		return graphmodel.Chunk{}, false, err
	}
	return graphmodel.Chunk{
		ID: id, DocID: decoded.DocID, Text: decoded.Text, ResolvedText: decoded.ResolvedText,
		SectionPath: decoded.SectionPath, SentenceIDs: decoded.SentenceIDs,
	}, true, nil
}

func (s *Store) claimByID(ctx context.Context, id string) (graphmodel.Claim, bool, error) {
	var props []byte
	err := s.pool.QueryRow(ctx, `SELECT props FROM nodes WHERE id=$1 AND label='Claim'`, id).Scan(&props)
	if err != nil {
		return graphmodel.Claim{}, false, nil //nolint:nilerr // not found is not a store failure
	}
	var decoded struct {
		Text        string   `json:"text"`
		DocID       string   `json:"doc_id"`
		ClaimType   string   `json:"claim_type"`
		Modality    string   `json:"modality"`
		Polarity    string   `json:"polarity"`
		Certainty   float64  `json:"certainty"`
		Confidence  float64  `json:"confidence"`
		SentenceIDs []string `json:"sentence_ids"`
	}
	if err := json.Unmarshal(props, &decoded); err != nil {
		return graphmodel.Claim{}, false, err
	}
	return graphmodel.Claim{
		ID: id, Text: decoded.Text, DocID: decoded.DocID,
		ClaimType: graphmodel.ClaimType(decoded.ClaimType), Modality: graphmodel.Modality(decoded.Modality),
		Polarity: graphmodel.Polarity(decoded.Polarity), Certainty: decoded.Certainty,
		Confidence: decoded.Confidence, SentenceIDs: decoded.SentenceIDs,
	}, true, nil
}

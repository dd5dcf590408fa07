package graphstore

import (
	"context"
	"strings"

	"graphrag/internal/graphmodel"
)

// EnsureAliasSchema creates the append-only alias table.
func (s *Store) EnsureAliasSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS aliases (
	id BIGSERIAL PRIMARY KEY,
	surface_form TEXT NOT NULL,
	canonical TEXT NOT NULL,
	doc_id TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	negative BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS aliases_surface ON aliases(lower(surface_form))`)
	return err
}

// AddAlias appends a new alias row. Append-only: resolution picks the
// most-recent, highest-confidence, non-negative row for a surface form.
func (s *Store) AddAlias(ctx context.Context, alias graphmodel.Alias) error {
	return s.exec(ctx, `
INSERT INTO aliases(surface_form, canonical, doc_id, confidence, negative)
VALUES ($1,$2,NULLIF($3,''),$4,$5)
`, alias.SurfaceForm, alias.Canonical, alias.DocID, alias.Confidence, alias.Negative)
}

// AliasLookup implements linking.CandidateSource: exact/normalized surface
// lookup against the alias dictionary followed by a join to the current
// Concept node for that canonical name. A newer negative row (from unlink
// feedback) suppresses earlier positive rows for the same surface/canonical
// pair.
func (s *Store) AliasLookup(ctx context.Context, surface string) ([]graphmodel.Concept, error) {
	rows, err := s.pool.Query(ctx, `
SELECT n.id, n.props->>'name', n.props->>'description', n.props->>'domain', n.props->>'category',
       COALESCE((n.props->>'importance')::float8, 0)
FROM aliases a
JOIN nodes n ON n.label='Concept' AND n.unique_key = a.canonical
WHERE lower(a.surface_form) = lower($1) AND a.negative = false
  AND NOT EXISTS (
    SELECT 1 FROM aliases neg
    WHERE neg.negative AND lower(neg.surface_form) = lower(a.surface_form)
      AND neg.canonical = a.canonical AND neg.created_at > a.created_at
  )
ORDER BY a.confidence DESC, a.created_at DESC
LIMIT 5
`, surface)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []graphmodel.Concept
	for rows.Next() {
		var c graphmodel.Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Domain, &c.Category, &c.Importance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LexicalSearch implements linking.CandidateSource with a case-insensitive
// substring match (LIKE over the lowercased Concept name and description),
// capped at topK rows. Results are not ranked by similarity.
func (s *Store) LexicalSearch(ctx context.Context, text string, topK int) ([]graphmodel.Concept, error) {
	pattern := "%" + strings.ToLower(text) + "%"
	rows, err := s.pool.Query(ctx, `
SELECT id, props->>'name', props->>'description', props->>'domain', props->>'category',
       COALESCE((props->>'importance')::float8, 0)
FROM nodes
WHERE label='Concept' AND (lower(props->>'name') LIKE $1 OR lower(props->>'description') LIKE $1)
LIMIT $2
`, pattern, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []graphmodel.Concept
	for rows.Next() {
		var c graphmodel.Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Domain, &c.Category, &c.Importance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// VectorSearch implements linking.CandidateSource via the Qdrant-backed
// VectorIndex, resolving the returned node ids back to Concept rows.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, topK int) ([]graphmodel.Concept, error) {
	if s.vector == nil {
		return nil, nil
	}
	ids, err := s.vector.Search(ctx, "concept", embedding, topK)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, props->>'name', props->>'description', props->>'domain', props->>'category',
       COALESCE((props->>'importance')::float8, 0)
FROM nodes WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []graphmodel.Concept
	for rows.Next() {
		var c graphmodel.Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Domain, &c.Category, &c.Importance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Package graphstore implements Stage 6: the single writer to the property
// graph. It upserts typed entities and edges with build_version and
// provenance stamped on every write, using a generic nodes/edges JSONB
// schema atop Postgres since no native graph database is part of the
// pipeline's dependency surface, plus a Qdrant-backed vector index for
// Concept, Chunk, Claim and Theme embeddings.
package graphstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"graphrag/internal/graphmodel"
)

// Store is the single writer and reader the rest of the pipeline depends on.
type Store struct {
	pool   *pgxpool.Pool
	vector *VectorIndex

	mu          sync.Mutex
	corrections map[string]int
}

// New wires a Store atop an already-connected pool and an optional vector
// index (nil disables vector-backed candidate recall and falls back to
// lexical-only linking, matching the "enable_vector_search" config flag).
func New(pool *pgxpool.Pool, vector *VectorIndex) *Store {
	return &Store{pool: pool, vector: vector, corrections: make(map[string]int)}
}

// writeAttempts bounds the exponential-backoff retry on transient store
// failures; the budget exhausted, the document transaction fails without
// partial writes surfacing to readers.
const writeAttempts = 3

// exec runs one write statement with exponential backoff. Context
// cancellation ends the retry loop immediately.
func (s *Store) exec(ctx context.Context, sql string, args ...any) error {
	var err error
	delay := 100 * time.Millisecond
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
		if _, err = s.pool.Exec(ctx, sql, args...); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// EnsureSchema creates the nodes/edges tables and supporting indices. Safe
// to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			unique_key TEXT,
			build_version TEXT NOT NULL,
			props JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS nodes_label_unique_key ON nodes(label, unique_key) WHERE unique_key IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS nodes_build_version ON nodes(build_version)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			rel TEXT NOT NULL,
			target TEXT NOT NULL,
			build_version TEXT NOT NULL,
			props JSONB NOT NULL DEFAULT '{}'::jsonb,
			UNIQUE(source, rel, target, props)
		)`,
		`CREATE INDEX IF NOT EXISTS edges_src_rel ON edges(source, rel)`,
		`CREATE INDEX IF NOT EXISTS edges_dst_rel ON edges(target, rel)`,
		`CREATE INDEX IF NOT EXISTS edges_build_version ON edges(build_version)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// upsertNode inserts or updates a node keyed by its primary id. uniqueKey,
// when non-empty, enforces the (label, unique_key) uniqueness invariant
// used for Concept.name and Claim (doc_id, normalized_text_hash).
func (s *Store) upsertNode(ctx context.Context, id, label, uniqueKey, buildVersion string, props map[string]any) error {
	return s.exec(ctx, `
INSERT INTO nodes(id, label, unique_key, build_version, props)
VALUES ($1,$2,NULLIF($3,''),$4,$5)
ON CONFLICT (id) DO UPDATE SET props = nodes.props || EXCLUDED.props, build_version = EXCLUDED.build_version
`, id, label, uniqueKey, buildVersion, props)
}

// upsertEdge inserts an edge, doing nothing if the (source, rel, target,
// props) tuple already exists — the idempotence invariant for relations.
func (s *Store) upsertEdge(ctx context.Context, source, rel, target, buildVersion string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	return s.exec(ctx, `
INSERT INTO edges(source, rel, target, build_version, props)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (source, rel, target, props) DO NOTHING
`, source, rel, target, buildVersion, props)
}

// findNodeByUniqueKey looks up an existing node id by its (label,
// unique_key) pair, used for Concept.name upsert-by-name and Claim
// upsert-by-hash.
func (s *Store) findNodeByUniqueKey(ctx context.Context, label, uniqueKey string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM nodes WHERE label=$1 AND unique_key=$2`, label, uniqueKey).Scan(&id)
	if err != nil {
		return "", false, nil //nolint:nilerr // pgx.ErrNoRows means "not found", not a store failure
	}
	return id, true, nil
}

// UpsertDocument writes a Document node, upserting by id.
func (s *Store) UpsertDocument(ctx context.Context, doc graphmodel.Document, buildVersion string) error {
	return s.upsertNode(ctx, doc.ID, "Document", "", buildVersion, map[string]any{
		"checksum": doc.Checksum, "kind": doc.Kind, "size": doc.Size, "status": doc.Status,
	})
}

// UpsertChunk writes a Chunk node and the Document-[:CONTAINS]->Chunk edge.
func (s *Store) UpsertChunk(ctx context.Context, chunk graphmodel.Chunk) error {
	if err := s.upsertNode(ctx, chunk.ID, "Chunk", "", chunk.BuildVersion, map[string]any{
		"doc_id": chunk.DocID, "text": chunk.Text, "resolved_text": chunk.ResolvedText,
		"section_path": chunk.SectionPath, "sentence_ids": chunk.SentenceIDs,
		"window_start": chunk.WindowStart, "window_end": chunk.WindowEnd,
	}); err != nil {
		return err
	}
	if err := s.upsertEdge(ctx, chunk.DocID, "CONTAINS", chunk.ID, chunk.BuildVersion, nil); err != nil {
		return err
	}
	if s.vector != nil && len(chunk.Embedding) > 0 {
		return s.vector.UpsertChunk(ctx, chunk.ID, chunk.Embedding)
	}
	return nil
}

// UpsertConcept upserts by Concept.name; returns the resolved concept id,
// creating a new node only when no existing concept shares the name.
func (s *Store) UpsertConcept(ctx context.Context, concept graphmodel.Concept, buildVersion string) (string, error) {
	id := concept.ID
	if existing, ok, err := s.findNodeByUniqueKey(ctx, "Concept", concept.Name); err != nil {
		return "", err
	} else if ok {
		id = existing
	}
	if err := s.upsertNode(ctx, id, "Concept", concept.Name, buildVersion, map[string]any{
		"name": concept.Name, "description": concept.Description, "domain": concept.Domain,
		"category": concept.Category, "importance": concept.Importance, "tags": concept.Tags,
		"source": concept.Source, "updated_at": time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	if s.vector != nil && len(concept.Embedding) > 0 {
		if err := s.vector.UpsertConcept(ctx, id, concept.Embedding); err != nil {
			return "", err
		}
	}
	return id, nil
}

// UpsertMention writes a MENTIONS edge from a Chunk to a Concept, plus the
// Concept's EVIDENCE_FROM edge back to the chunk so every linked concept
// resolves to four-level provenance.
func (s *Store) UpsertMention(ctx context.Context, m graphmodel.Mention, ev graphmodel.Evidence, buildVersion string) error {
	if err := s.upsertEdge(ctx, m.ChunkID, "MENTIONS", m.ConceptID, buildVersion, map[string]any{
		"evidence": m.Evidence, "offset": m.Offset, "confidence": m.Confidence,
	}); err != nil {
		return err
	}
	return s.upsertEdge(ctx, m.ConceptID, "EVIDENCE_FROM", m.ChunkID, buildVersion, map[string]any{
		"doc_id": ev.DocID, "section_path": ev.SectionPath, "sentence_ids": ev.SentenceIDs,
	})
}

// UpsertClaim upserts by (doc_id, normalized_text_hash); when a prior claim
// with the same hash exists, unions the sentence_ids and attaches this
// chunk's evidence rather than creating a new node.
func (s *Store) UpsertClaim(ctx context.Context, claim graphmodel.Claim) (string, error) {
	uniqueKey := claim.DocID + "|" + claim.NormalizedTextHash
	id := claim.ID
	existing, ok, err := s.findNodeByUniqueKey(ctx, "Claim", uniqueKey)
	if err != nil {
		return "", err
	}
	if ok {
		id = existing
		if err := s.unionSentenceIDs(ctx, id, claim.SentenceIDs); err != nil {
			return "", err
		}
	} else {
		if err := s.upsertNode(ctx, id, "Claim", uniqueKey, claim.BuildVersion, map[string]any{
			"text": claim.Text, "doc_id": claim.DocID, "claim_type": claim.ClaimType,
			"modality": claim.Modality, "polarity": claim.Polarity, "certainty": claim.Certainty,
			"confidence": claim.Confidence, "sentence_ids": claim.SentenceIDs,
		}); err != nil {
			return "", err
		}
	}
	if err := s.upsertEdge(ctx, claim.ChunkID, "CONTAINS_CLAIM", id, claim.BuildVersion, nil); err != nil {
		return "", err
	}
	if err := s.upsertEdge(ctx, id, "EVIDENCE_FROM", claim.ChunkID, claim.BuildVersion, map[string]any{
		"doc_id": claim.EvidenceSpan.DocID, "section_path": claim.EvidenceSpan.SectionPath,
		"sentence_ids": claim.EvidenceSpan.SentenceIDs,
	}); err != nil {
		return "", err
	}
	if s.vector != nil && len(claim.Embedding) > 0 {
		if err := s.vector.UpsertClaim(ctx, id, claim.Embedding); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (s *Store) unionSentenceIDs(ctx context.Context, claimID string, newIDs []string) error {
	return s.exec(ctx, `
UPDATE nodes SET props = jsonb_set(
  props, '{sentence_ids}',
  (SELECT to_jsonb(array(SELECT DISTINCT unnest(
     (SELECT array(SELECT jsonb_array_elements_text(props->'sentence_ids')) FROM nodes WHERE id=$1)
     || $2::text[]
  ))))
)
WHERE id=$1
`, claimID, newIDs)
}

// UpsertClaimRelation writes a Claim-[:REL {confidence}]->Claim edge.
func (s *Store) UpsertClaimRelation(ctx context.Context, rel graphmodel.ClaimRelation, buildVersion string) error {
	return s.upsertEdge(ctx, rel.FromClaimID, string(rel.Type), rel.ToClaimID, buildVersion, map[string]any{
		"confidence": rel.Confidence,
	})
}

// UpsertConceptRelation writes a Concept-[:predicate]->Concept edge. Callers
// must have already cleared the triple through the predicate governor;
// Store never validates the predicate itself.
func (s *Store) UpsertConceptRelation(ctx context.Context, rel graphmodel.ConceptRelation, buildVersion string) error {
	return s.upsertEdge(ctx, rel.FromConceptID, rel.Predicate, rel.ToConceptID, buildVersion, map[string]any{
		"confidence": rel.Confidence,
	})
}

// UpsertTheme writes a Theme node and its BELONGS_TO_THEME edges.
func (s *Store) UpsertTheme(ctx context.Context, theme graphmodel.Theme, memberships []graphmodel.BelongsToTheme, buildVersion string) error {
	if err := s.upsertNode(ctx, theme.ID, "Theme", "", buildVersion, map[string]any{
		"label": theme.Label, "summary": theme.Summary, "level": theme.Level,
		"keywords": theme.Keywords, "community_id": theme.CommunityID, "member_count": theme.MemberCount,
	}); err != nil {
		return err
	}
	if s.vector != nil && len(theme.Embedding) > 0 {
		if err := s.vector.UpsertTheme(ctx, theme.ID, theme.Embedding); err != nil {
			return err
		}
	}
	for _, m := range memberships {
		if err := s.upsertEdge(ctx, m.MemberID, "BELONGS_TO_THEME", m.ThemeID, buildVersion, nil); err != nil {
			return err
		}
	}
	return nil
}

// RollbackBuild deletes every node and edge stamped with buildVersion,
// fully undoing one ingestion run. Concepts shared with other builds survive
// unless orphaned, per the rollback invariant (orphan cleanup is a separate
// maintenance operation, not performed here).
func (s *Store) RollbackBuild(ctx context.Context, buildVersion string) error {
	if err := s.exec(ctx, `DELETE FROM edges WHERE build_version=$1`, buildVersion); err != nil {
		return err
	}
	return s.exec(ctx, `
DELETE FROM nodes n WHERE n.build_version=$1 AND n.label != 'Concept'
`, buildVersion)
}

// Neighbors returns the rel-typed edges out of id as ConceptRelation values
// (source, predicate, target, confidence).
func (s *Store) Neighbors(ctx context.Context, id string, rels []string) ([]graphmodel.ConceptRelation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT source, rel, target, COALESCE((props->>'confidence')::float8, 0)
FROM edges WHERE source=$1 AND rel = ANY($2)
`, id, rels)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []graphmodel.ConceptRelation
	for rows.Next() {
		var rel graphmodel.ConceptRelation
		if err := rows.Scan(&rel.FromConceptID, &rel.Predicate, &rel.ToConceptID, &rel.Confidence); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

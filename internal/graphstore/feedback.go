package graphstore

import "context"

// RedirectConcept implements feedback.GraphWriter: repoints every edge
// referencing sourceID onto targetID, rewrites alias rows from the source
// concept's name to the target's, then marks the source node with a
// redirect_to property. The source node stays in place, and no read path
// follows redirect_to.
func (s *Store) RedirectConcept(ctx context.Context, sourceID, targetID string) error {
	if err := s.exec(ctx, `UPDATE edges SET source=$2 WHERE source=$1`, sourceID, targetID); err != nil {
		return err
	}
	if err := s.exec(ctx, `UPDATE edges SET target=$2 WHERE target=$1`, sourceID, targetID); err != nil {
		return err
	}
	// Alias rows hold canonical concept names, not ids.
	if err := s.exec(ctx, `
UPDATE aliases SET canonical = (SELECT props->>'name' FROM nodes WHERE id=$2)
WHERE canonical = (SELECT props->>'name' FROM nodes WHERE id=$1)
`, sourceID, targetID); err != nil {
		return err
	}
	return s.exec(ctx, `UPDATE nodes SET props = props || jsonb_build_object('redirect_to', $2::text) WHERE id=$1`, sourceID, targetID)
}

// RecordCorrection logs a Stage 8 correction and returns how many times this
// exact (edgeID, newPredicate, newObjectID) correction has recurred within
// this process. The count is held in memory and starts from zero in each new
// process; the durable log row records the latest count for operators, and
// nothing reads it back.
func (s *Store) RecordCorrection(ctx context.Context, edgeID, newPredicate, newObjectID string) (int, error) {
	key := edgeID + "|" + newPredicate + "|" + newObjectID
	s.mu.Lock()
	s.corrections[key]++
	count := s.corrections[key]
	s.mu.Unlock()

	err := s.exec(ctx, `
INSERT INTO nodes(id, label, props, build_version) VALUES ($1, 'CorrectionLog', $2, 'feedback')
ON CONFLICT (id) DO UPDATE SET props = nodes.props || EXCLUDED.props
`, "correction:"+key, map[string]any{
		"edge_id": edgeID, "new_predicate": newPredicate, "new_object_id": newObjectID, "recurrences": count,
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

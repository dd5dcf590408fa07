// Package feedback implements Stage 8: the three human-in-the-loop write
// APIs (merge, correct, unlink) plus the metrics computed over a
// build_version.
package feedback

import (
	"context"
	"time"

	"graphrag/internal/graphmodel"
	"graphrag/internal/predicate"
)

// GraphWriter is the subset of the graph store Stage 8 needs.
type GraphWriter interface {
	RedirectConcept(ctx context.Context, sourceID, targetID string) error
	AddAlias(ctx context.Context, alias graphmodel.Alias) error
	RecordCorrection(ctx context.Context, edgeID, newPredicate, newObjectID string) (recurrences int, err error)
}

// Service drives Stage 8's feedback write APIs. Governor is mutated
// in-process by Correct when a correction recurs often enough; callers are
// responsible for persisting the updated surface map for the next run.
type Service struct {
	Store                   GraphWriter
	Governor                *predicate.Governor
	CorrectionMinRecurrence int
}

// Merge rewrites aliases and edges from source to target and redirects the
// source concept.
func (s *Service) Merge(ctx context.Context, sourceID, targetID string) error {
	return s.Store.RedirectConcept(ctx, sourceID, targetID)
}

// Correct logs a correction and updates the predicate governor's surface map
// if the same correction recurs at least CorrectionMinRecurrence times.
func (s *Service) Correct(ctx context.Context, edgeID, surface, newPredicate, newObjectID string) error {
	recurrences, err := s.Store.RecordCorrection(ctx, edgeID, newPredicate, newObjectID)
	if err != nil {
		return err
	}
	minRecurrence := s.CorrectionMinRecurrence
	if minRecurrence <= 0 {
		minRecurrence = 3
	}
	if recurrences >= minRecurrence && s.Governor != nil {
		s.Governor.AddSurfaceMapping(surface, newPredicate)
	}
	return nil
}

// Unlink adds a negative alias entry so surface no longer resolves to
// conceptName within docID's context.
func (s *Service) Unlink(ctx context.Context, surface, conceptName, docID string) error {
	return s.Store.AddAlias(ctx, graphmodel.Alias{
		SurfaceForm: surface,
		Canonical:   conceptName,
		DocID:       docID,
		Negative:    true,
		CreatedAt:   time.Now().UTC(),
	})
}

// MetricsInput is the raw data Metrics needs; callers assemble it from the
// graph store and (optionally) a held-out labeled set.
type MetricsInput struct {
	BuildVersion         string
	LinkedMentions       int
	CorrectLinkedSample  int // sample-judged correct against a held-out set
	LabeledSampleSize    int
	PredicateCounts      map[string]int // canonical predicate -> count, including "OTHER"
	NodesWithEvidence    int
	TotalNodes           int
	ClaimRelationSamples int
	ClaimRelationCorrect int
}

// Metrics is Stage 8's report for one build_version.
type Metrics struct {
	BuildVersion           string
	EntityLinkAccuracy     float64
	PredicateOtherShare    float64
	ProvenanceCompleteness float64
	ClaimRelationPrecision float64
}

// Compute derives Stage 8's metrics from in.
func Compute(in MetricsInput) Metrics {
	m := Metrics{BuildVersion: in.BuildVersion}

	if in.LabeledSampleSize > 0 {
		m.EntityLinkAccuracy = float64(in.CorrectLinkedSample) / float64(in.LabeledSampleSize)
	}

	total := 0
	for _, c := range in.PredicateCounts {
		total += c
	}
	if total > 0 {
		m.PredicateOtherShare = float64(in.PredicateCounts[predicate.OTHER]) / float64(total)
	}

	if in.TotalNodes > 0 {
		m.ProvenanceCompleteness = float64(in.NodesWithEvidence) / float64(in.TotalNodes)
	}

	if in.ClaimRelationSamples > 0 {
		m.ClaimRelationPrecision = float64(in.ClaimRelationCorrect) / float64(in.ClaimRelationSamples)
	}

	return m
}

// ExceedsOtherShareBudget reports whether the OTHER predicate share crossed
// the 10% operational budget; above it, the surface map needs new rows.
func (m Metrics) ExceedsOtherShareBudget() bool {
	return m.PredicateOtherShare > 0.10
}

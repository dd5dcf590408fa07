package feedback

import (
	"context"
	"testing"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/predicate"
)

type fakeWriter struct {
	recurrences    map[string]int
	redirectedFrom string
	redirectedTo   string
	addedAlias     graphmodel.Alias
}

func (f *fakeWriter) RedirectConcept(ctx context.Context, sourceID, targetID string) error {
	f.redirectedFrom, f.redirectedTo = sourceID, targetID
	return nil
}
func (f *fakeWriter) AddAlias(ctx context.Context, alias graphmodel.Alias) error {
	f.addedAlias = alias
	return nil
}
func (f *fakeWriter) RecordCorrection(ctx context.Context, edgeID, newPredicate, newObjectID string) (int, error) {
	f.recurrences[edgeID]++
	return f.recurrences[edgeID], nil
}

func TestMerge_RedirectsConcept(t *testing.T) {
	w := &fakeWriter{recurrences: map[string]int{}}
	s := &Service{Store: w}
	if err := s.Merge(context.Background(), "c1", "c2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.redirectedFrom != "c1" || w.redirectedTo != "c2" {
		t.Fatalf("expected redirect c1->c2, got %s->%s", w.redirectedFrom, w.redirectedTo)
	}
}

func TestCorrect_UpdatesGovernorAfterMinRecurrence(t *testing.T) {
	w := &fakeWriter{recurrences: map[string]int{}}
	ontology := config.OntologyConfig{
		NodeTypes:  []string{"T"},
		Predicates: []config.OntologyPredicate{{Name: "USES", Pairs: [][2]string{{"T", "T"}}}},
	}
	gov := predicate.NewGovernor(ontology, config.PredicateGovernorConfig{}, nil)
	s := &Service{Store: w, Governor: gov, CorrectionMinRecurrence: 2}

	for i := 0; i < 2; i++ {
		if err := s.Correct(context.Background(), "edge1", "employs", "USES", "obj1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	d := gov.Resolve("employs", "T", "T")
	if !d.Accepted {
		t.Fatalf("expected governor to adopt the recurring correction, got %+v", d)
	}
}

func TestUnlink_AddsNegativeAlias(t *testing.T) {
	w := &fakeWriter{recurrences: map[string]int{}}
	s := &Service{Store: w}
	if err := s.Unlink(context.Background(), "AI", "Acme AI Division", "doc1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.addedAlias.Negative {
		t.Fatalf("expected negative alias, got %+v", w.addedAlias)
	}
}

func TestCompute_PredicateOtherShare(t *testing.T) {
	m := Compute(MetricsInput{
		PredicateCounts: map[string]int{"USES": 90, "OTHER": 10},
	})
	if m.PredicateOtherShare != 0.1 {
		t.Fatalf("expected 0.1 other share, got %f", m.PredicateOtherShare)
	}
	if m.ExceedsOtherShareBudget() {
		t.Fatalf("expected exactly-10%% share to stay within budget")
	}
}

func TestCompute_ProvenanceCompleteness(t *testing.T) {
	m := Compute(MetricsInput{NodesWithEvidence: 8, TotalNodes: 10})
	if m.ProvenanceCompleteness != 0.8 {
		t.Fatalf("expected 0.8 completeness, got %f", m.ProvenanceCompleteness)
	}
}

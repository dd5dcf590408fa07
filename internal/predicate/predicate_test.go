package predicate

import (
	"testing"

	"graphrag/internal/config"
)

func testOntology() config.OntologyConfig {
	return config.OntologyConfig{
		NodeTypes: []string{"Technology", "Organization"},
		Predicates: []config.OntologyPredicate{
			{Name: "USES", Pairs: [][2]string{{"Organization", "Technology"}}},
		},
	}
}

func TestResolve_SurfaceMappingAccepted(t *testing.T) {
	cfg := config.PredicateGovernorConfig{SurfaceMap: []config.PredicateSurfaceMapping{{Surfaces: []string{"adopts", "employs"}, Canonical: "USES"}}}
	g := NewGovernor(testOntology(), cfg, nil)
	d := g.Resolve("adopts", "Organization", "Technology")
	if !d.Accepted || d.Canonical != "USES" {
		t.Fatalf("expected accepted USES, got %+v", d)
	}
}

func TestResolve_TypeViolationRejected(t *testing.T) {
	cfg := config.PredicateGovernorConfig{SurfaceMap: []config.PredicateSurfaceMapping{{Surfaces: []string{"adopts"}, Canonical: "USES"}}}
	g := NewGovernor(testOntology(), cfg, nil)
	d := g.Resolve("adopts", "Technology", "Organization")
	if d.Accepted {
		t.Fatalf("expected rejection for reversed type pair, got %+v", d)
	}
}

func TestResolve_UnmappedSurfaceIsOther(t *testing.T) {
	g := NewGovernor(testOntology(), config.PredicateGovernorConfig{}, nil)
	d := g.Resolve("frobnicates", "Organization", "Technology")
	if d.Canonical != OTHER || d.Accepted {
		t.Fatalf("expected OTHER, got %+v", d)
	}
}

type fakeSynonyms struct {
	predicate  string
	similarity float64
}

func (f fakeSynonyms) Nearest(surface string) (string, float64) { return f.predicate, f.similarity }

func TestResolve_SynonymFallbackAboveThreshold(t *testing.T) {
	g := NewGovernor(testOntology(), config.PredicateGovernorConfig{SynonymThreshold: 0.8}, fakeSynonyms{predicate: "USES", similarity: 0.9})
	d := g.Resolve("leverages", "Organization", "Technology")
	if !d.Accepted || d.Canonical != "USES" {
		t.Fatalf("expected synonym fallback to accept USES, got %+v", d)
	}
}

func TestForbidTypePair_BlocksSubsequentResolve(t *testing.T) {
	cfg := config.PredicateGovernorConfig{SurfaceMap: []config.PredicateSurfaceMapping{{Surfaces: []string{"adopts"}, Canonical: "USES"}}}
	g := NewGovernor(testOntology(), cfg, nil)
	g.ForbidTypePair("USES", "Organization", "Technology")
	d := g.Resolve("adopts", "Organization", "Technology")
	if d.Accepted {
		t.Fatalf("expected forbidden type pair to reject, got %+v", d)
	}
}

// Package predicate implements Stage 5: mapping free-text predicate
// surfaces to a whitelisted canonical predicate, enforcing the ontology's
// (subject_type, object_type) constraints, and applying feedback-driven
// mapping updates. The governor never writes to the graph; it returns
// decisions that Stage 6 consumes.
package predicate

import (
	"strings"

	"graphrag/internal/config"
)

// OTHER is returned when no mapping or synonym match clears the threshold;
// the triple is enqueued for human review rather than written to the graph.
const OTHER = "OTHER"

// Decision is the Governor's verdict for one proposed predicate triple.
type Decision struct {
	Canonical string
	Accepted  bool
	Reason    string // populated when Accepted is false
}

// Governor holds the mutable surface->canonical table and the ontology's
// type constraints. Feedback operations mutate Table/Synonyms in place;
// changes take effect on the next ingestion, not the in-flight one.
type Governor struct {
	Ontology  config.OntologyConfig
	Table     map[string]string // normalized surface -> canonical
	Synonyms  SynonymLookup
	Threshold float64
	forbidden map[string]bool // "predicate|subjectType|objectType"
}

// SynonymLookup resolves an unmapped surface to its closest whitelisted
// predicate by embedding similarity, backed by the predicate cache.
type SynonymLookup interface {
	Nearest(surface string) (predicate string, similarity float64)
}

// NewGovernor builds a Governor from the configured surface map.
func NewGovernor(ontology config.OntologyConfig, cfg config.PredicateGovernorConfig, synonyms SynonymLookup) *Governor {
	table := map[string]string{}
	for _, row := range cfg.SurfaceMap {
		for _, s := range row.Surfaces {
			table[normalize(s)] = row.Canonical
		}
	}
	threshold := cfg.SynonymThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	return &Governor{
		Ontology:  ontology,
		Table:     table,
		Synonyms:  synonyms,
		Threshold: threshold,
		forbidden: map[string]bool{},
	}
}

// Resolve maps surface to a canonical predicate and checks it against the
// ontology's (subjectType, objectType) constraint for that predicate.
func (g *Governor) Resolve(surface, subjectType, objectType string) Decision {
	canonical, ok := g.Table[normalize(surface)]
	if !ok {
		if g.Synonyms != nil {
			if cand, sim := g.Synonyms.Nearest(surface); sim >= g.Threshold {
				canonical = cand
				ok = true
			}
		}
	}
	if !ok {
		return Decision{Canonical: OTHER, Accepted: false, Reason: "no surface mapping or synonym match above threshold"}
	}

	if g.forbidden[forbidKey(canonical, subjectType, objectType)] {
		return Decision{Canonical: canonical, Accepted: false, Reason: "predicate forbidden for this type pair by feedback"}
	}

	if !g.typesAllowed(canonical, subjectType, objectType) {
		return Decision{Canonical: canonical, Accepted: false, Reason: "type pair not permitted by ontology"}
	}

	return Decision{Canonical: canonical, Accepted: true}
}

func (g *Governor) typesAllowed(predicate, subjectType, objectType string) bool {
	for _, p := range g.Ontology.Predicates {
		if !strings.EqualFold(p.Name, predicate) {
			continue
		}
		if len(p.Pairs) == 0 {
			return true // predicate declared with no pair restrictions
		}
		for _, pair := range p.Pairs {
			if strings.EqualFold(pair[0], subjectType) && strings.EqualFold(pair[1], objectType) {
				return true
			}
		}
		return false
	}
	return false // predicate not declared in the ontology at all
}

// AddSurfaceMapping implements feedback operation (a): add a new
// surface->canonical row.
func (g *Governor) AddSurfaceMapping(surface, canonical string) {
	g.Table[normalize(surface)] = canonical
}

// ForbidTypePair implements feedback operation (b): forbid a predicate for a
// type pair.
func (g *Governor) ForbidTypePair(predicate, subjectType, objectType string) {
	g.forbidden[forbidKey(predicate, subjectType, objectType)] = true
}

// AddWhitelistEntry implements feedback operation (c): add a new whitelist
// entry with its allowed type pairs.
func (g *Governor) AddWhitelistEntry(name string, pairs [][2]string) {
	g.Ontology.Predicates = append(g.Ontology.Predicates, config.OntologyPredicate{Name: name, Pairs: pairs})
}

func forbidKey(predicate, subjectType, objectType string) string {
	return strings.ToLower(predicate) + "|" + strings.ToLower(subjectType) + "|" + strings.ToLower(objectType)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

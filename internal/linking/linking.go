// Package linking implements Stage 2: resolving chunk mentions to Concept
// nodes (or NIL) via three independent candidate sources merged and
// reranked, then gated against the configured ontology's type constraints.
package linking

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
)

// Candidate is one linking proposal for a mention, before reranking.
type Candidate struct {
	Concept graphmodel.Concept
	Source  string // "alias", "lexical", "vector"
	Score   float64
}

// Link is Stage 2's verdict for one mention.
type Link struct {
	Mention    string
	ConceptID  string // empty when IsNil
	IsNil      bool
	Confidence float64
	IsReview   bool
	Evidence   graphmodel.Mention
}

// CandidateSource is the multi-retrieval surface the linker draws from.
// Implementations are backed by the alias dictionary cache, a lexical index
// and the vector index respectively; Stage 2 itself holds no storage state.
type CandidateSource interface {
	AliasLookup(ctx context.Context, surface string) ([]graphmodel.Concept, error)
	LexicalSearch(ctx context.Context, text string, topK int) ([]graphmodel.Concept, error)
	VectorSearch(ctx context.Context, embedding []float32, topK int) ([]graphmodel.Concept, error)
}

// Mention is one candidate surface-form span detected in a chunk's
// resolved text, ready for linking.
type Mention struct {
	Surface      string
	Offset       [2]int
	SentenceID   string
	IsAlias      bool // guaranteed mention, produced by Stage 1's alias map
	InferredType string
}

var mentionPattern = regexp.MustCompile(`\b([A-Z][\w-]*(?:\s+[A-Z][\w-]*)*)\b`)

// DetectMentions runs the named-entity/noun-phrase heuristic over
// resolvedText, folding in Stage 1's guaranteed alias mentions.
func DetectMentions(resolvedText string, aliasMap map[string]string) []Mention {
	var out []Mention
	seen := map[string]bool{}
	for surface := range aliasMap {
		if seen[surface] {
			continue
		}
		seen[surface] = true
		out = append(out, Mention{Surface: surface, IsAlias: true})
	}
	for _, loc := range mentionPattern.FindAllStringIndex(resolvedText, -1) {
		surface := resolvedText[loc[0]:loc[1]]
		if seen[surface] || len(surface) < 2 {
			continue
		}
		seen[surface] = true
		out = append(out, Mention{Surface: surface, Offset: [2]int{loc[0], loc[1]}})
	}
	return out
}

// Linker resolves mentions to concepts using the configured thresholds and
// ontology.
type Linker struct {
	Sources  CandidateSource
	Cfg      config.EntityLinkingConfig
	Ontology config.OntologyConfig
}

// New constructs a Linker.
func New(sources CandidateSource, cfg config.EntityLinkingConfig, ontology config.OntologyConfig) *Linker {
	return &Linker{Sources: sources, Cfg: cfg, Ontology: ontology}
}

// LinkChunk links every mention detected in chunk, returning one Link per
// mention. Concepts already linked earlier in the same chunk feed the
// co-occurrence reranking term.
func (l *Linker) LinkChunk(ctx context.Context, chunk graphmodel.Chunk, mentions []Mention) []Link {
	var links []Link
	linkedInChunk := map[string]bool{}

	for _, m := range mentions {
		candidates := l.collectCandidates(ctx, m, chunk)
		best, bestScore := l.rerank(candidates, m, chunk, linkedInChunk)

		link := Link{
			Mention: m.Surface,
			Evidence: graphmodel.Mention{
				ChunkID: chunk.ID,
				Surface: m.Surface,
				Offset:  m.Offset,
			},
		}
		switch {
		case best == nil:
			link.IsNil = true
		case bestScore >= l.Cfg.HighThreshold:
			link.ConceptID = best.ID
			link.Confidence = bestScore
			linkedInChunk[best.ID] = true
		case bestScore >= l.Cfg.LowThreshold:
			link.ConceptID = best.ID
			link.Confidence = bestScore
			link.IsReview = true
			linkedInChunk[best.ID] = true
		default:
			link.IsNil = true
		}
		link.Evidence.ConceptID = link.ConceptID
		link.Evidence.Confidence = link.Confidence
		links = append(links, link)
	}
	return links
}

func (l *Linker) collectCandidates(ctx context.Context, m Mention, chunk graphmodel.Chunk) []Candidate {
	var out []Candidate
	topK := l.Cfg.TopKPerSource
	if topK <= 0 {
		topK = 8
	}

	if aliases, err := l.Sources.AliasLookup(ctx, m.Surface); err == nil {
		for _, c := range aliases {
			out = append(out, Candidate{Concept: c, Source: "alias", Score: 1.0})
		}
	}
	if lex, err := l.Sources.LexicalSearch(ctx, m.Surface, topK); err == nil {
		for _, c := range lex {
			out = append(out, Candidate{Concept: c, Source: "lexical", Score: textSimilarity(m.Surface, c.Name)})
		}
	}
	if len(chunk.Embedding) > 0 {
		if vec, err := l.Sources.VectorSearch(ctx, chunk.Embedding, topK); err == nil {
			for _, c := range vec {
				out = append(out, Candidate{Concept: c, Source: "vector", Score: cosine(chunk.Embedding, c.Embedding)})
			}
		}
	}
	return out
}

// rerank applies the weighted blend of signals described for Stage 2 and
// returns the top-scoring candidate concept (or nil) with its final score.
func (l *Linker) rerank(candidates []Candidate, m Mention, chunk graphmodel.Chunk, linkedInChunk map[string]bool) (*graphmodel.Concept, float64) {
	if len(candidates) == 0 {
		return nil, 0
	}
	byConcept := map[string]*graphmodel.Concept{}
	scores := map[string]float64{}
	for _, c := range candidates {
		concept := c.Concept
		byConcept[concept.ID] = &concept

		nameSim := textSimilarity(m.Surface, concept.Name)
		ctxFit := cosine(chunk.Embedding, concept.Embedding)
		coOccur := 0.0
		if linkedInChunk[concept.ID] {
			coOccur = 1.0
		}
		typeScore := l.typeCompatibility(m, concept)
		if typeScore < 0 {
			continue // hard ontology violation disqualifies the candidate
		}

		score := 0.30*nameSim + 0.25*c.Score + 0.15*ctxFit + 0.10*coOccur + 0.10*concept.Importance + 0.10*typeScore
		if score > scores[concept.ID] {
			scores[concept.ID] = score
		}
	}
	var bestID string
	bestScore := -1.0
	for id, s := range scores {
		if s > bestScore {
			bestScore, bestID = s, id
		}
	}
	if bestID == "" {
		return nil, 0
	}
	return byConcept[bestID], bestScore
}

// typeCompatibility returns a [0,1] fit score for (mention, concept.Category)
// against the declared node types, or -1 for a hard ontology violation (a
// declared node-type list that doesn't contain the candidate's category at
// all — an inferred type that simply isn't in scope for this ontology).
func (l *Linker) typeCompatibility(m Mention, concept graphmodel.Concept) float64 {
	if len(l.Ontology.NodeTypes) == 0 {
		return 0.5
	}
	if concept.Category == "" {
		return 0.5
	}
	for _, t := range l.Ontology.NodeTypes {
		if strings.EqualFold(t, concept.Category) {
			if m.InferredType == "" || strings.EqualFold(m.InferredType, concept.Category) {
				return 1.0
			}
			return 0.5
		}
	}
	return -1
}

func textSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1.0
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return 0.7
	}
	return jaccardTrigram(a, b)
}

func jaccardTrigram(a, b string) float64 {
	ga, gb := trigrams(a), trigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	inter := 0
	for g := range ga {
		if gb[g] {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]bool {
	out := map[string]bool{}
	if len(s) < 3 {
		out[s] = true
		return out
	}
	for i := 0; i+3 <= len(s); i++ {
		out[s[i:i+3]] = true
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortLinksByConfidence orders links highest confidence first, NILs last;
// used by callers that report linking outcomes deterministically.
func SortLinksByConfidence(links []Link) {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].IsNil != links[j].IsNil {
			return !links[i].IsNil
		}
		return links[i].Confidence > links[j].Confidence
	})
}

// Package query implements Stage 7: theme-first hybrid retrieval over the
// persisted graph, producing a scoped, citation-anchored answer.
package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
)

// Mode selects how much of the hybrid algorithm runs.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	ModeHybrid Mode = "hybrid"
)

// Evidence is one cited source snippet in the final answer.
type Evidence struct {
	DocID       string
	ChunkID     string
	SectionPath []string
	SentenceIDs []string
	Snippet     string
}

// ReasoningStep is one claim in the assembled reasoning chain plus the
// relation that connected it to the prior step (empty for the seed claim).
type ReasoningStep struct {
	ClaimID  string
	Relation graphmodel.ClaimRelationType
}

// Result is Stage 7's output.
type Result struct {
	Answer         string
	Themes         []graphmodel.Theme
	Evidence       []Evidence
	ReasoningChain []ReasoningStep
}

// Store is the read surface Stage 7 needs from the graph/vector store.
type Store interface {
	SearchThemes(ctx context.Context, embedding []float32, topN int) ([]graphmodel.Theme, error)
	SearchChunks(ctx context.Context, embedding []float32, topM int) ([]graphmodel.Chunk, error)
	SearchClaims(ctx context.Context, embedding []float32, topM int) ([]graphmodel.Claim, error)
	ThemeMembers(ctx context.Context, themeID string) ([]string, error)
	ExpandClaimRelations(ctx context.Context, claimID string, maxHops int) ([]ReasoningStep, error)
	ExpandConceptPredicates(ctx context.Context, conceptID string, maxHops int) ([]graphmodel.ConceptRelation, error)
	ResolveEvidence(ctx context.Context, claimOrConceptID string) (Evidence, error)
}

// Embedder embeds a question into the same vector space as themes/chunks/
// claims.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service drives Stage 7.
type Service struct {
	Store    Store
	Embedder Embedder
	Provider llm.Provider
	Cfg      config.RetrievalConfig
	Model    string
}

var anchorPattern = regexp.MustCompile(`\[claim:([\w:-]+)\]`)

// Answer runs the configured retrieval mode over question.
func (svc *Service) Answer(ctx context.Context, question string, mode Mode, topK int) (Result, error) {
	if mode == "" {
		mode = ModeHybrid
	}
	if topK <= 0 {
		topK = svc.Cfg.TopK
	}

	embedding, err := svc.Embedder.Embed(ctx, question)
	if err != nil {
		// An embedding failure fails the whole query; no structured-only
		// result is returned without a question vector.
		return Result{}, fmt.Errorf("embed question: %w", err)
	}

	var themes []graphmodel.Theme
	if mode != ModeLocal {
		themes, err = svc.Store.SearchThemes(ctx, embedding, topK)
		if err != nil {
			themes = nil // best-effort: the query continues without themes; no cached themes are substituted
		}
	}
	if mode == ModeGlobal {
		return svc.answerFromThemesOnly(ctx, question, themes)
	}

	chunks, _ := svc.Store.SearchChunks(ctx, embedding, topK)
	claims, _ := svc.Store.SearchClaims(ctx, embedding, topK)

	seedClaims := map[string]bool{}
	for _, c := range claims {
		seedClaims[c.ID] = true
	}
	for _, th := range themes {
		members, _ := svc.Store.ThemeMembers(ctx, th.ID)
		for _, m := range members {
			seedClaims[m] = true
		}
	}

	maxHops := svc.Cfg.MaxHops
	if maxHops <= 0 {
		maxHops = 2
	}
	var chain []ReasoningStep
	seen := map[string]bool{}
	for claimID := range seedClaims {
		if seen[claimID] {
			continue
		}
		seen[claimID] = true
		chain = append(chain, ReasoningStep{ClaimID: claimID})
		steps, _ := svc.Store.ExpandClaimRelations(ctx, claimID, maxHops)
		for _, s := range steps {
			if !seen[s.ClaimID] {
				seen[s.ClaimID] = true
				chain = append(chain, s)
			}
		}
	}

	var evidence []Evidence
	for claimID := range seen {
		if ev, err := svc.Store.ResolveEvidence(ctx, claimID); err == nil {
			evidence = append(evidence, ev)
		}
	}
	for _, c := range chunks {
		evidence = append(evidence, Evidence{DocID: c.DocID, ChunkID: c.ID, SectionPath: c.SectionPath, SentenceIDs: c.SentenceIDs, Snippet: c.Text})
	}

	answer, err := svc.generate(ctx, question, themes, chain, evidence)
	if err != nil {
		// LLM timeout/failure: return the structured retrieval result with no
		// natural-language answer, per the query service's failure semantics.
		return Result{Themes: themes, Evidence: evidence, ReasoningChain: chain}, nil
	}

	return Result{Answer: answer, Themes: themes, Evidence: evidence, ReasoningChain: chain}, nil
}

func (svc *Service) answerFromThemesOnly(ctx context.Context, question string, themes []graphmodel.Theme) (Result, error) {
	var b strings.Builder
	for _, t := range themes {
		b.WriteString(t.Label)
		b.WriteString(": ")
		b.WriteString(t.Summary)
		b.WriteString("\n")
	}
	return Result{Answer: b.String(), Themes: themes}, nil
}

// generate invokes the LLM with a bounded context and requires every
// asserted sentence to cite a claim anchor; retries up to
// GenerationMaxRetry times, returning "insufficient evidence" if retries
// exhaust.
func (svc *Service) generate(ctx context.Context, question string, themes []graphmodel.Theme, chain []ReasoningStep, evidence []Evidence) (string, error) {
	prompt := buildPrompt(question, themes, chain, evidence)
	retries := svc.Cfg.GenerationMaxRetry
	if retries <= 0 {
		retries = 2
	}
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := svc.Provider.ChatCompletion(ctx, llm.Request{
			Messages:    []llm.Message{{Role: "user", Content: prompt}},
			Model:       svc.Model,
			MaxTokens:   1024,
			Temperature: 0.1,
		})
		if err != nil {
			return "", err
		}
		if validAnchors(resp.Text, chain) {
			return resp.Text, nil
		}
		prompt += "\n\nYour previous answer had an unanchored sentence. Every assertion must cite [claim:<id>]."
	}
	return "insufficient evidence", nil
}

func buildPrompt(question string, themes []graphmodel.Theme, chain []ReasoningStep, evidence []Evidence) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nThemes:\n")
	for _, t := range themes {
		fmt.Fprintf(&b, "- %s: %s\n", t.Label, t.Summary)
	}
	b.WriteString("\nReasoning chain claims:\n")
	for _, c := range chain {
		fmt.Fprintf(&b, "- [claim:%s]\n", c.ClaimID)
	}
	b.WriteString("\nEvidence snippets:\n")
	for _, e := range evidence {
		fmt.Fprintf(&b, "- (%s/%s): %s\n", e.DocID, e.ChunkID, e.Snippet)
	}
	b.WriteString("\nAnswer, citing every assertion with [claim:<id>] anchors from the reasoning chain.")
	return b.String()
}

func validAnchors(text string, chain []ReasoningStep) bool {
	known := map[string]bool{}
	for _, c := range chain {
		known[c.ClaimID] = true
	}
	matches := anchorPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return len(chain) == 0
	}
	for _, m := range matches {
		if !known[m[1]] {
			return false
		}
	}
	return true
}

// SortEvidenceByChunk orders evidence for stable, deterministic output.
func SortEvidenceByChunk(evidence []Evidence) {
	sort.SliceStable(evidence, func(i, j int) bool { return evidence[i].ChunkID < evidence[j].ChunkID })
}

// Package theme implements Stage 4: projecting the concept/claim subgraph
// touched by a document, partitioning it into communities via a
// modularity-greedy algorithm, and labeling each community above the
// configured minimum size via an LLM prompt over its top-degree members.
package theme

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
)

// Edge is one weighted edge of the projected subgraph (an inter-concept
// predicate or a shared-concept co-membership link between claims).
type Edge struct {
	From   string
	To     string
	Weight float64
}

// Member is one node of the projected subgraph with the text used to build
// keyword and summary prompts.
type Member struct {
	ID     string
	Degree int
	Text   string
}

// community is an internal working set during greedy modularity
// optimization.
type community struct {
	members map[string]bool
}

// Detect runs one pass of greedy modularity community detection (a
// Louvain-style local-move heuristic, single level — no hierarchical
// recursion, since Stage 4 only needs coarse/fine, not arbitrary depth).
// No graph-algorithm library exists in the pipeline's dependency surface, so
// this is a direct, from-scratch implementation rather than stdlib used in
// place of an unavailable third-party one.
func Detect(nodeIDs []string, edges []Edge) map[string][]string {
	if len(nodeIDs) == 0 {
		return nil
	}
	adj := buildAdjacency(edges)
	totalWeight := 0.0
	for _, e := range edges {
		totalWeight += e.Weight
	}
	if totalWeight == 0 {
		totalWeight = 1
	}

	assign := map[string]string{}
	for _, n := range nodeIDs {
		assign[n] = n // each node starts in its own community
	}
	degree := map[string]float64{}
	for _, n := range nodeIDs {
		for _, w := range adj[n] {
			degree[n] += w
		}
	}

	improved := true
	for pass := 0; pass < 10 && improved; pass++ {
		improved = false
		for _, n := range nodeIDs {
			best := assign[n]
			bestGain := 0.0
			neighborComms := map[string]float64{}
			for nb, w := range adj[n] {
				neighborComms[assign[nb]] += w
			}
			for comm, weightTo := range neighborComms {
				if comm == assign[n] {
					continue
				}
				gain := weightTo/totalWeight - (degree[n] * communityDegree(assign, degree, comm) / (2 * totalWeight * totalWeight))
				if gain > bestGain {
					bestGain, best = gain, comm
				}
			}
			if best != assign[n] {
				assign[n] = best
				improved = true
			}
		}
	}

	groups := map[string][]string{}
	for n, c := range assign {
		groups[c] = append(groups[c], n)
	}
	for _, members := range groups {
		sort.Strings(members)
	}
	return groups
}

// Induced filters edges to those with both endpoints inside members, used
// when re-detecting fine-level communities within one coarse theme.
func Induced(edges []Edge, members []string) []Edge {
	in := make(map[string]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	var out []Edge
	for _, e := range edges {
		if in[e.From] && in[e.To] {
			out = append(out, e)
		}
	}
	return out
}

func buildAdjacency(edges []Edge) map[string]map[string]float64 {
	adj := map[string]map[string]float64{}
	for _, e := range edges {
		if adj[e.From] == nil {
			adj[e.From] = map[string]float64{}
		}
		if adj[e.To] == nil {
			adj[e.To] = map[string]float64{}
		}
		adj[e.From][e.To] += e.Weight
		adj[e.To][e.From] += e.Weight
	}
	return adj
}

func communityDegree(assign map[string]string, degree map[string]float64, comm string) float64 {
	total := 0.0
	for n, c := range assign {
		if c == comm {
			total += degree[n]
		}
	}
	return total
}

// Builder drives Stage 4's labeling step once communities are detected.
type Builder struct {
	Provider llm.Provider
	Cfg      config.ThemeConfig
	Model    string
}

// BuildThemes filters detected communities below MinCommunitySize, labels
// the rest via one LLM call per community, and returns the resulting Theme
// nodes plus BELONGS_TO_THEME edges.
func (b *Builder) BuildThemes(ctx context.Context, groups map[string][]string, members map[string]Member, level graphmodel.ThemeLevel) ([]graphmodel.Theme, []graphmodel.BelongsToTheme) {
	minSize := b.Cfg.MinCommunitySize
	if minSize <= 0 {
		minSize = 3
	}

	var themes []graphmodel.Theme
	var memberships []graphmodel.BelongsToTheme

	for _, memberIDs := range groups {
		if len(memberIDs) < minSize {
			continue
		}
		id := themeID(memberIDs, level)
		label, summary := b.label(ctx, memberIDs, members)
		keywords := topKeywords(memberIDs, members)

		themes = append(themes, graphmodel.Theme{
			ID:          id,
			Label:       label,
			Summary:     summary,
			Level:       level,
			Keywords:    keywords,
			CommunityID: id,
			MemberCount: len(memberIDs),
		})
		for _, m := range memberIDs {
			memberships = append(memberships, graphmodel.BelongsToTheme{MemberID: m, ThemeID: id})
		}
	}
	return themes, memberships
}

func (b *Builder) label(ctx context.Context, memberIDs []string, members map[string]Member) (string, string) {
	topDegree := topByDegree(memberIDs, members, 8)
	var texts []string
	for _, id := range topDegree {
		texts = append(texts, members[id].Text)
	}
	prompt := fmt.Sprintf("Given these related concepts and claims, respond with a short theme label on the first line and a one-paragraph summary after:\n\n%s", strings.Join(texts, "\n"))

	if b.Provider == nil {
		return "Untitled theme", ""
	}
	resp, err := b.Provider.ChatCompletion(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Model:       b.Model,
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil || resp.Text == "" {
		return "Untitled theme", ""
	}
	lines := strings.SplitN(strings.TrimSpace(resp.Text), "\n", 2)
	label := strings.TrimSpace(lines[0])
	summary := ""
	if len(lines) > 1 {
		summary = strings.TrimSpace(lines[1])
	}
	return label, summary
}

func topByDegree(memberIDs []string, members map[string]Member, n int) []string {
	sorted := append([]string(nil), memberIDs...)
	sort.Slice(sorted, func(i, j int) bool { return members[sorted[i]].Degree > members[sorted[j]].Degree })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// topKeywords computes top-TF-IDF-like tokens across member text: term
// frequency within the community weighted by inverse frequency across all
// members (a coarse proxy for IDF since the full corpus frequency isn't
// available to this package).
func topKeywords(memberIDs []string, members map[string]Member) []string {
	freq := map[string]int{}
	for _, id := range memberIDs {
		for _, tok := range tokenize(members[id].Text) {
			freq[tok]++
		}
	}
	docFreq := map[string]int{}
	for _, m := range members {
		seen := map[string]bool{}
		for _, tok := range tokenize(m.Text) {
			if !seen[tok] {
				seen[tok] = true
				docFreq[tok]++
			}
		}
	}
	type kv struct {
		token string
		score float64
	}
	var ranked []kv
	for t, c := range freq {
		ranked = append(ranked, kv{t, float64(c) * math.Log(1+float64(len(members))/float64(docFreq[t]))})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	var out []string
	for i := 0; i < len(ranked) && i < 10; i++ {
		out = append(out, ranked[i].token)
	}
	return out
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

func themeID(memberIDs []string, level graphmodel.ThemeLevel) string {
	sorted := append([]string(nil), memberIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(strings.Join(sorted, "|")))
	h.Write([]byte(level))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Package coref implements Stage 1: resolving pronouns, short nominal
// mentions and parenthesis aliases within a single Chunk into a
// surface-form-to-canonical alias map, without introducing any new
// concepts. Stage 2 consumes the alias map; this package never talks to
// the graph store.
package coref

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode is the resolver's confidence-graded verdict for a chunk.
type Mode string

const (
	ModeRewrite   Mode = "rewrite"
	ModeLocal     Mode = "local"
	ModeAliasOnly Mode = "alias_only"
	ModeSkip      Mode = "skip"
)

// Match is one resolved mention: a surface form replaced by (or mapped to)
// a canonical antecedent, with the score that produced it.
type Match struct {
	Surface   string
	Canonical string
	Offset    int
	Score     float64
	Ambiguous bool // more than one viable antecedent competed for this mention
}

// Result is Stage 1's output for one chunk.
type Result struct {
	ResolvedText string
	AliasMap     map[string]string
	Mode         Mode
	Coverage     float64
	Conflict     float64
	Matches      []Match
}

// parenAlias matches "<term>（<alias>）" and the ASCII-paren equivalent,
// e.g. "人工智能（AI）" -> alias AI -> 人工智能.
var parenAlias = regexp.MustCompile(`([\p{L}\p{N} ]{2,60})[（(]([\p{L}\p{N}]{1,20})[）)]`)

// pronoun lists the bound, closed set of third-person pronoun/demonstrative
// mentions this heuristic resolver looks for. A production deployment would
// swap this for a proper coreference model; the contract (surface->canonical
// map, never introducing new concepts) stays the same either way.
var pronoun = regexp.MustCompile(`(?i)\b(it|they|this|that|these|those|he|she)\b`)

const minChunkLenForResolution = 20

// Resolve runs Stage 1 over one chunk's text. antecedents is the ordered set
// of noun-phrase candidates already seen earlier in the document (nearest
// last), used as the antecedent search window for pronouns.
func Resolve(text string, antecedents []string) Result {
	if len(strings.TrimSpace(text)) < minChunkLenForResolution {
		return Result{ResolvedText: text, AliasMap: map[string]string{}, Mode: ModeSkip}
	}

	aliasMap := map[string]string{}
	var matches []Match
	var defSpans [][2]int

	for _, m := range parenAlias.FindAllStringSubmatchIndex(text, -1) {
		term := strings.TrimSpace(text[m[2]:m[3]])
		alias := strings.TrimSpace(text[m[4]:m[5]])
		if term == "" || alias == "" {
			continue
		}
		aliasMap[alias] = term
		defSpans = append(defSpans, [2]int{m[0], m[1]})
	}
	hasParenAlias := len(defSpans) > 0

	totalMentions := 0
	resolvedCount := 0
	conflictCount := 0

	// Every re-occurrence of a defined alias outside its definitional span
	// is a mention this chunk can resolve with certainty.
	for alias, term := range aliasMap {
		for _, off := range occurrences(text, alias) {
			if insideAny(defSpans, off, off+len(alias)) {
				continue
			}
			totalMentions++
			resolvedCount++
			matches = append(matches, Match{Surface: alias, Canonical: term, Offset: off, Score: 1.0})
		}
	}

	for _, loc := range pronoun.FindAllStringIndex(text, -1) {
		totalMentions++
		surface := text[loc[0]:loc[1]]
		canonical, score, ambiguous := nearestAntecedent(antecedents)
		if canonical == "" {
			continue
		}
		resolvedCount++
		if ambiguous {
			conflictCount++
		}
		aliasMap[surface] = canonical
		matches = append(matches, Match{Surface: surface, Canonical: canonical, Offset: loc[0], Score: score, Ambiguous: ambiguous})
	}

	coverage := 1.0
	conflict := 0.0
	if totalMentions > 0 {
		coverage = float64(resolvedCount) / float64(totalMentions)
		conflict = float64(conflictCount) / float64(totalMentions)
	}

	mode := decideMode(coverage, conflict, hasParenAlias, totalMentions)

	resolved := text
	if mode == ModeRewrite {
		resolved = rewrite(text, matches)
	}

	return Result{
		ResolvedText: resolved,
		AliasMap:     aliasMap,
		Mode:         mode,
		Coverage:     coverage,
		Conflict:     conflict,
		Matches:      matches,
	}
}

// occurrences finds the byte offsets of every standalone occurrence of
// surface in text, rejecting matches glued to a letter or digit on either
// side (so "AI" does not match inside "CHAIN").
func occurrences(text, surface string) []int {
	var out []int
	for start := 0; ; {
		idx := strings.Index(text[start:], surface)
		if idx < 0 {
			return out
		}
		off := start + idx
		if standalone(text, off, off+len(surface)) {
			out = append(out, off)
		}
		start = off + len(surface)
	}
}

func standalone(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) && r < 0x2E80 || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) && r < 0x2E80 || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func insideAny(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start >= s[0] && end <= s[1] {
			return true
		}
	}
	return false
}

// nearestAntecedent picks the most recent candidate as the antecedent. The
// score is fixed: 0.9 for a single candidate, 0.6 when more than one
// candidate is within the bounded window, which is treated as ambiguous
// (matches the coverage/conflict semantics). Neither distance decay nor
// head-noun compatibility enters the score.
func nearestAntecedent(antecedents []string) (string, float64, bool) {
	if len(antecedents) == 0 {
		return "", 0, false
	}
	nearest := antecedents[len(antecedents)-1]
	ambiguous := len(antecedents) > 1
	score := 0.9
	if ambiguous {
		score = 0.6
	}
	return nearest, score, ambiguous
}

func decideMode(coverage, conflict float64, hasParenAlias bool, totalMentions int) Mode {
	switch {
	case totalMentions == 0 && hasParenAlias:
		return ModeAliasOnly
	case totalMentions == 0:
		return ModeSkip
	case coverage >= 0.8 && conflict <= 0.15:
		return ModeRewrite
	case coverage >= 0.5:
		return ModeLocal
	case hasParenAlias:
		return ModeAliasOnly
	default:
		return ModeSkip
	}
}

// rewrite substitutes each unambiguous match's canonical form at its
// recorded offset, right to left so earlier offsets stay valid.
func rewrite(text string, matches []Match) string {
	ordered := append([]Match(nil), matches...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Offset > ordered[j].Offset })
	out := text
	for _, m := range ordered {
		if m.Ambiguous {
			continue
		}
		end := m.Offset + len(m.Surface)
		if end > len(out) || out[m.Offset:end] != m.Surface {
			continue
		}
		out = out[:m.Offset] + m.Canonical + out[end:]
	}
	return out
}

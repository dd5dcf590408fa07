package coref

import (
	"strings"
	"testing"
)

func TestResolve_ParenAliasOnly(t *testing.T) {
	r := Resolve("Artificial Intelligence (AI) has grown quickly in recent years.", nil)
	if r.Mode != ModeAliasOnly {
		t.Fatalf("expected alias_only mode, got %s", r.Mode)
	}
	if r.AliasMap["AI"] != "Artificial Intelligence" {
		t.Fatalf("expected alias map entry, got %v", r.AliasMap)
	}
}

func TestResolve_AliasReoccurrenceTriggersRewrite(t *testing.T) {
	r := Resolve("人工智能（AI）是一种技术。AI 可以处理自然语言。", nil)
	if r.AliasMap["AI"] != "人工智能" {
		t.Fatalf("expected AI -> 人工智能, got %v", r.AliasMap)
	}
	if r.Mode != ModeRewrite {
		t.Fatalf("expected rewrite mode, got %s", r.Mode)
	}
	if strings.Count(r.ResolvedText, "人工智能") < 2 {
		t.Fatalf("expected canonical form in both positions, got %q", r.ResolvedText)
	}
}

func TestResolve_AliasNotMatchedInsideLargerWord(t *testing.T) {
	text := "Artificial Intelligence (AI) differs from CHAIN processing entirely."
	r := Resolve(text, nil)
	for _, m := range r.Matches {
		if m.Surface == "AI" && strings.HasPrefix(text[m.Offset:], "AIN") {
			t.Fatalf("alias matched inside CHAIN at offset %d", m.Offset)
		}
	}
}

func TestResolve_ShortChunkSkipped(t *testing.T) {
	r := Resolve("Too short.", nil)
	if r.Mode != ModeSkip {
		t.Fatalf("expected skip mode for short chunk, got %s", r.Mode)
	}
	if len(r.AliasMap) != 0 {
		t.Fatalf("expected empty alias map, got %v", r.AliasMap)
	}
}

func TestResolve_RewriteOnHighCoverage(t *testing.T) {
	r := Resolve("The satellite launched successfully. It reached orbit within minutes.", []string{"the satellite"})
	if r.Mode != ModeRewrite {
		t.Fatalf("expected rewrite mode, got %s", r.Mode)
	}
	if !strings.Contains(r.ResolvedText, "the satellite reached orbit") {
		t.Fatalf("expected pronoun substituted in place, got %q", r.ResolvedText)
	}
	if r.Coverage != 1.0 {
		t.Fatalf("expected full coverage, got %f", r.Coverage)
	}
}

func TestResolve_RewriteRoundTrip(t *testing.T) {
	text := "The satellite launched successfully. It reached orbit within minutes."
	r := Resolve(text, []string{"the satellite"})
	if r.Mode != ModeRewrite {
		t.Skipf("mode %s, round-trip law applies to rewrite only", r.Mode)
	}
	rebuilt := text
	for _, m := range r.Matches {
		if !m.Ambiguous {
			rebuilt = strings.Replace(rebuilt, m.Surface, m.Canonical, 1)
		}
	}
	if rebuilt != r.ResolvedText {
		t.Fatalf("applying matches to the original text must reproduce resolved_text:\n%q\nvs\n%q", rebuilt, r.ResolvedText)
	}
}

func TestResolve_AmbiguousAntecedentsRaiseConflict(t *testing.T) {
	r := Resolve("The mission succeeded. It exceeded all expectations for the team.", []string{"the rover", "the lander"})
	if r.Conflict == 0 {
		t.Fatalf("expected nonzero conflict with two competing antecedents")
	}
}

func TestResolve_NoNewConceptsIntroduced(t *testing.T) {
	antecedents := []string{"the rover", "the lander"}
	r := Resolve("The mission succeeded. It exceeded all expectations for the team.", antecedents)
	for surface, canonical := range r.AliasMap {
		found := false
		for _, a := range antecedents {
			if canonical == a {
				found = true
			}
		}
		if !found && canonical != "" {
			t.Fatalf("alias %s -> %s introduces a concept outside the antecedent set", surface, canonical)
		}
	}
}

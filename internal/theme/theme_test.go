package theme

import (
	"context"
	"testing"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
)

func TestDetect_TwoDisjointCliques(t *testing.T) {
	nodes := []string{"a", "b", "c", "d", "e", "f"}
	edges := []Edge{
		{From: "a", To: "b", Weight: 1}, {From: "b", To: "c", Weight: 1}, {From: "a", To: "c", Weight: 1},
		{From: "d", To: "e", Weight: 1}, {From: "e", To: "f", Weight: 1}, {From: "d", To: "f", Weight: 1},
	}
	groups := Detect(nodes, edges)
	if len(groups) == 0 {
		t.Fatalf("expected at least one community")
	}
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total != len(nodes) {
		t.Fatalf("expected every node assigned exactly once, got %d of %d", total, len(nodes))
	}
}

func TestDetect_EmptyInput(t *testing.T) {
	if groups := Detect(nil, nil); groups != nil {
		t.Fatalf("expected nil groups for empty input, got %v", groups)
	}
}

func TestBuildThemes_FiltersBelowMinSize(t *testing.T) {
	groups := map[string][]string{
		"c1": {"a", "b"},           // below min size 3
		"c2": {"x", "y", "z", "w"}, // above min size 3
	}
	members := map[string]Member{
		"a": {ID: "a", Degree: 1, Text: "alpha"}, "b": {ID: "b", Degree: 1, Text: "beta"},
		"x": {ID: "x", Degree: 3, Text: "gamma delta"}, "y": {ID: "y", Degree: 2, Text: "gamma"},
		"z": {ID: "z", Degree: 1, Text: "delta"}, "w": {ID: "w", Degree: 1, Text: "epsilon"},
	}
	b := &Builder{Cfg: config.ThemeConfig{MinCommunitySize: 3}}
	themes, memberships := b.BuildThemes(context.Background(), groups, members, graphmodel.ThemeLevelCoarse)
	if len(themes) != 1 {
		t.Fatalf("expected exactly 1 theme above min size, got %d", len(themes))
	}
	if len(memberships) != 4 {
		t.Fatalf("expected 4 memberships for the surviving community, got %d", len(memberships))
	}
}

func TestInduced_KeepsOnlyInternalEdges(t *testing.T) {
	edges := []Edge{
		{From: "a", To: "b", Weight: 1},
		{From: "b", To: "x", Weight: 1},
		{From: "x", To: "y", Weight: 1},
	}
	sub := Induced(edges, []string{"a", "b"})
	if len(sub) != 1 || sub[0].From != "a" || sub[0].To != "b" {
		t.Fatalf("expected only the a-b edge, got %v", sub)
	}
}

func TestThemeID_DeterministicAcrossMemberOrder(t *testing.T) {
	id1 := themeID([]string{"a", "b", "c"}, graphmodel.ThemeLevelCoarse)
	id2 := themeID([]string{"c", "a", "b"}, graphmodel.ThemeLevelCoarse)
	if id1 != id2 {
		t.Fatalf("expected order-independent theme id, got %s vs %s", id1, id2)
	}
}

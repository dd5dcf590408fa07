package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
postgres:
  dsn: postgres://localhost/graphrag
ontology:
  node_types: [Technology, Organization]
  predicates:
    - name: USES
      pairs: [[Organization, Technology]]
predicate_governor:
  surface_map:
    - surfaces: ["基于", "采用", "利用"]
      canonical: USES
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDocumentedDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chunking.WindowSentences != 4 {
		t.Errorf("expected default window 4, got %d", cfg.Chunking.WindowSentences)
	}
	if cfg.Chunking.Stride != 2 {
		t.Errorf("expected default stride 2, got %d", cfg.Chunking.Stride)
	}
	if cfg.Linking.HighThreshold != 0.85 || cfg.Linking.LowThreshold != 0.65 {
		t.Errorf("expected default link thresholds 0.85/0.65, got %f/%f", cfg.Linking.HighThreshold, cfg.Linking.LowThreshold)
	}
	if cfg.Retrieval.MaxHops != 2 {
		t.Errorf("expected default max hops 2, got %d", cfg.Retrieval.MaxHops)
	}
	if cfg.EmbedDim != 1536 {
		t.Errorf("expected default embed dim 1536, got %d", cfg.EmbedDim)
	}
	if cfg.BuildVersionPrefix != "build" {
		t.Errorf("expected default build version prefix, got %q", cfg.BuildVersionPrefix)
	}
}

func TestLoad_SurfaceMapParsed(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Predicate.SurfaceMap) != 1 || cfg.Predicate.SurfaceMap[0].Canonical != "USES" {
		t.Fatalf("expected surface map row mapping to USES, got %+v", cfg.Predicate.SurfaceMap)
	}
	if len(cfg.Predicate.SurfaceMap[0].Surfaces) != 3 {
		t.Fatalf("expected three surfaces, got %v", cfg.Predicate.SurfaceMap[0].Surfaces)
	}
}

func TestLoad_FailsFast(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"invalid yaml", "::not yaml::\n\t"},
		{"thresholds inverted", `
postgres: {dsn: postgres://x}
ontology:
  node_types: [T]
  predicates: [{name: USES}]
entity_linking: {high_threshold: 0.5, low_threshold: 0.9}
`},
		{"no node types", `
postgres: {dsn: postgres://x}
ontology:
  predicates: [{name: USES}]
`},
		{"no predicates", `
postgres: {dsn: postgres://x}
ontology:
  node_types: [T]
`},
		{"no postgres dsn", `
ontology:
  node_types: [T]
  predicates: [{name: USES}]
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml), ""); err == nil {
				t.Fatalf("expected startup failure for %s", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), ""); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

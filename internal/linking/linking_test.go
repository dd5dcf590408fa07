package linking

import (
	"context"
	"testing"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
)

type fakeSource struct {
	alias  []graphmodel.Concept
	lex    []graphmodel.Concept
	vector []graphmodel.Concept
}

func (f fakeSource) AliasLookup(ctx context.Context, surface string) ([]graphmodel.Concept, error) {
	return f.alias, nil
}
func (f fakeSource) LexicalSearch(ctx context.Context, text string, topK int) ([]graphmodel.Concept, error) {
	return f.lex, nil
}
func (f fakeSource) VectorSearch(ctx context.Context, embedding []float32, topK int) ([]graphmodel.Concept, error) {
	return f.vector, nil
}

func testOntology() config.OntologyConfig {
	return config.OntologyConfig{NodeTypes: []string{"Organization", "Technology"}}
}

func TestLinkChunk_HighConfidenceAccepted(t *testing.T) {
	src := fakeSource{alias: []graphmodel.Concept{{ID: "c1", Name: "OpenAI", Category: "Organization", Importance: 0.8}}}
	l := New(src, config.EntityLinkingConfig{HighThreshold: 0.5, LowThreshold: 0.3, TopKPerSource: 8}, testOntology())
	chunk := graphmodel.Chunk{ID: "chunk1"}
	links := l.LinkChunk(context.Background(), chunk, []Mention{{Surface: "OpenAI"}})
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].IsNil {
		t.Fatalf("expected non-nil link for strong alias match")
	}
	if links[0].ConceptID != "c1" {
		t.Fatalf("expected concept c1, got %s", links[0].ConceptID)
	}
}

func TestLinkChunk_ZeroCandidatesIsNil(t *testing.T) {
	src := fakeSource{}
	l := New(src, config.EntityLinkingConfig{HighThreshold: 0.85, LowThreshold: 0.65, TopKPerSource: 8}, testOntology())
	links := l.LinkChunk(context.Background(), graphmodel.Chunk{}, []Mention{{Surface: "Unknown Corp"}})
	if !links[0].IsNil {
		t.Fatalf("expected NIL link for mention with zero candidates")
	}
}

func TestLinkChunk_LowConfidenceFlaggedForReview(t *testing.T) {
	src := fakeSource{lex: []graphmodel.Concept{{ID: "c2", Name: "Somewhat Related Term", Category: "Organization"}}}
	l := New(src, config.EntityLinkingConfig{HighThreshold: 0.9, LowThreshold: 0.01, TopKPerSource: 8}, testOntology())
	links := l.LinkChunk(context.Background(), graphmodel.Chunk{}, []Mention{{Surface: "Term"}})
	if links[0].IsNil {
		t.Fatalf("expected a review link, not nil")
	}
	if !links[0].IsReview {
		t.Fatalf("expected IsReview=true for mid-confidence score")
	}
}

func TestLinkChunk_OntologyViolationDisqualifies(t *testing.T) {
	src := fakeSource{alias: []graphmodel.Concept{{ID: "c3", Name: "Mars", Category: "Planet"}}}
	l := New(src, config.EntityLinkingConfig{HighThreshold: 0.1, LowThreshold: 0.01, TopKPerSource: 8}, testOntology())
	links := l.LinkChunk(context.Background(), graphmodel.Chunk{}, []Mention{{Surface: "Mars"}})
	if !links[0].IsNil {
		t.Fatalf("expected NIL: category Planet is outside the ontology's node types")
	}
}

func TestDetectMentions_AliasMapGuaranteed(t *testing.T) {
	mentions := DetectMentions("Some text about Acme Corp.", map[string]string{"AC": "Acme Corp"})
	found := false
	for _, m := range mentions {
		if m.Surface == "AC" && m.IsAlias {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alias map mention to be guaranteed, got %+v", mentions)
	}
}

package claims

import (
	"context"
	"testing"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
)

type fakeProvider struct {
	text string
	err  error
}

func (f fakeProvider) ChatCompletion(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text}, nil
}

func testChunk() graphmodel.Chunk {
	return graphmodel.Chunk{ID: "chunk1", DocID: "doc1", ResolvedText: "The probe reached orbit.", BuildVersion: "b1"}
}

func TestExtract_ParsesClaimsAndRelations(t *testing.T) {
	json := `{"claims":[{"text":"The probe reached orbit.","claim_type":"fact","modality":"assertive","polarity":"positive","certainty":0.9,"confidence":0.9,"sentence_ids":["s0"]},
	  {"text":"This confirms the mission succeeded.","claim_type":"conclusion","modality":"assertive","polarity":"positive","certainty":0.8,"confidence":0.8,"sentence_ids":["s1"]}],
	  "relations":[{"from_text":"The probe reached orbit.","to_text":"This confirms the mission succeeded.","type":"SUPPORTS","confidence":0.8}]}`
	e := &Extractor{Provider: fakeProvider{text: json}, Cfg: config.ClaimConfig{NLICheck: true}}
	c, rel, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(c))
	}
	if len(rel) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(rel))
	}
	if rel[0].Type != graphmodel.RelationSupports {
		t.Fatalf("expected SUPPORTS, got %s", rel[0].Type)
	}
}

func TestExtract_InvalidJSONYieldsZeroClaimsNotError(t *testing.T) {
	e := &Extractor{Provider: fakeProvider{text: "not json at all"}}
	c, rel, err := e.Extract(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("expected no error on double parse failure, got %v", err)
	}
	if len(c) != 0 || len(rel) != 0 {
		t.Fatalf("expected zero claims/relations, got %d/%d", len(c), len(rel))
	}
}

func TestExtract_CausesRelationRequiresSignal(t *testing.T) {
	json := `{"claims":[{"text":"Temperatures rose.","claim_type":"fact","modality":"assertive","polarity":"positive","certainty":0.9,"confidence":0.9},
	  {"text":"Ice melted.","claim_type":"fact","modality":"assertive","polarity":"positive","certainty":0.9,"confidence":0.9}],
	  "relations":[{"from_text":"Temperatures rose.","to_text":"Ice melted.","type":"CAUSES","confidence":0.7}]}`
	e := &Extractor{Provider: fakeProvider{text: json}, Cfg: config.ClaimConfig{NLICheck: true}}
	_, rel, _ := e.Extract(context.Background(), testChunk())
	if len(rel) != 0 {
		t.Fatalf("expected CAUSES relation to be dropped without a causal signal phrase, got %d", len(rel))
	}
}

func TestNormalizedHash_IgnoresPunctuationAndCase(t *testing.T) {
	a := normalizedHash("The Probe, reached Orbit!")
	b := normalizedHash("the probe reached orbit")
	if a != b {
		t.Fatalf("expected equal hashes, got %s vs %s", a, b)
	}
}

package query

import (
	"context"
	"testing"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
)

type fakeStore struct {
	themes []graphmodel.Theme
	chunks []graphmodel.Chunk
	claims []graphmodel.Claim
}

func (f fakeStore) SearchThemes(ctx context.Context, e []float32, n int) ([]graphmodel.Theme, error) {
	return f.themes, nil
}
func (f fakeStore) SearchChunks(ctx context.Context, e []float32, n int) ([]graphmodel.Chunk, error) {
	return f.chunks, nil
}
func (f fakeStore) SearchClaims(ctx context.Context, e []float32, n int) ([]graphmodel.Claim, error) {
	return f.claims, nil
}
func (f fakeStore) ThemeMembers(ctx context.Context, id string) ([]string, error) { return nil, nil }
func (f fakeStore) ExpandClaimRelations(ctx context.Context, id string, hops int) ([]ReasoningStep, error) {
	return nil, nil
}
func (f fakeStore) ExpandConceptPredicates(ctx context.Context, id string, hops int) ([]graphmodel.ConceptRelation, error) {
	return nil, nil
}
func (f fakeStore) ResolveEvidence(ctx context.Context, id string) (Evidence, error) {
	return Evidence{ChunkID: id}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeProvider struct{ text string }

func (f fakeProvider) ChatCompletion(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: f.text}, nil
}

func TestAnswer_GlobalModeUsesThemesOnly(t *testing.T) {
	svc := &Service{
		Store:    fakeStore{themes: []graphmodel.Theme{{ID: "t1", Label: "Space", Summary: "About rockets."}}},
		Embedder: fakeEmbedder{},
		Provider: fakeProvider{},
		Cfg:      config.RetrievalConfig{TopK: 5},
	}
	res, err := svc.Answer(context.Background(), "what is this about?", ModeGlobal, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Themes) != 1 {
		t.Fatalf("expected 1 theme, got %d", len(res.Themes))
	}
}

func TestValidAnchors_RejectsUnknownClaim(t *testing.T) {
	chain := []ReasoningStep{{ClaimID: "c1"}}
	if validAnchors("The rocket launched [claim:c2].", chain) {
		t.Fatalf("expected rejection of unknown claim anchor")
	}
	if !validAnchors("The rocket launched [claim:c1].", chain) {
		t.Fatalf("expected acceptance of known claim anchor")
	}
}

func TestValidAnchors_EmptyChainRequiresNoAnchors(t *testing.T) {
	if !validAnchors("General statement with no claims.", nil) {
		t.Fatalf("expected acceptance when no reasoning chain exists")
	}
}

func TestAnswer_HybridAssemblesEvidenceFromChunksAndClaims(t *testing.T) {
	svc := &Service{
		Store: fakeStore{
			chunks: []graphmodel.Chunk{{ID: "chunk1", DocID: "doc1", Text: "snippet"}},
			claims: []graphmodel.Claim{{ID: "claim1"}},
		},
		Embedder: fakeEmbedder{},
		Provider: fakeProvider{text: "Answer [claim:claim1]."},
		Cfg:      config.RetrievalConfig{TopK: 5, MaxHops: 2, GenerationMaxRetry: 1},
	}
	res, err := svc.Answer(context.Background(), "question", ModeHybrid, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Evidence) == 0 {
		t.Fatalf("expected assembled evidence")
	}
}

package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"graphrag/internal/cache"
	"graphrag/internal/claims"
	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/linking"
	"graphrag/internal/llm"
	"graphrag/internal/predicate"
	"graphrag/internal/theme"
)

// memGraph mirrors the real store's uniqueness discipline (concepts by name,
// claims by doc|hash, edges by src/rel/dst) so idempotence is observable
// without Postgres.
type memGraph struct {
	mu             sync.Mutex
	docs           map[string]graphmodel.Document
	chunks         map[string]graphmodel.Chunk
	conceptsByName map[string]graphmodel.Concept
	claimIDsByKey  map[string]string
	claims         map[string]graphmodel.Claim
	edges          map[string]string // "src|rel|dst" -> build_version
	aliases        []graphmodel.Alias
	themes         map[string]graphmodel.Theme
}

func newMemGraph() *memGraph {
	return &memGraph{
		docs:           map[string]graphmodel.Document{},
		chunks:         map[string]graphmodel.Chunk{},
		conceptsByName: map[string]graphmodel.Concept{},
		claimIDsByKey:  map[string]string{},
		claims:         map[string]graphmodel.Claim{},
		edges:          map[string]string{},
		themes:         map[string]graphmodel.Theme{},
	}
}

func (g *memGraph) UpsertDocument(_ context.Context, doc graphmodel.Document, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs[doc.ID] = doc
	return nil
}

func (g *memGraph) UpsertChunk(_ context.Context, c graphmodel.Chunk) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunks[c.ID] = c
	g.edges[c.DocID+"|CONTAINS|"+c.ID] = c.BuildVersion
	return nil
}

func (g *memGraph) UpsertConcept(_ context.Context, c graphmodel.Concept, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.conceptsByName[c.Name]; ok {
		return existing.ID, nil
	}
	g.conceptsByName[c.Name] = c
	return c.ID, nil
}

func (g *memGraph) UpsertMention(_ context.Context, m graphmodel.Mention, ev graphmodel.Evidence, buildVersion string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[m.ChunkID+"|MENTIONS|"+m.ConceptID] = buildVersion
	g.edges[m.ConceptID+"|EVIDENCE_FROM|"+ev.ChunkID] = buildVersion
	return nil
}

func (g *memGraph) AddAlias(_ context.Context, alias graphmodel.Alias) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.aliases = append(g.aliases, alias)
	return nil
}

func (g *memGraph) AliasLookup(_ context.Context, surface string) ([]graphmodel.Concept, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range g.aliases {
		if a.Negative || a.SurfaceForm != surface {
			continue
		}
		if c, ok := g.conceptsByName[a.Canonical]; ok {
			return []graphmodel.Concept{c}, nil
		}
	}
	return nil, nil
}

func (g *memGraph) UpsertClaim(_ context.Context, c graphmodel.Claim) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := c.DocID + "|" + c.NormalizedTextHash
	if id, ok := g.claimIDsByKey[key]; ok {
		return id, nil
	}
	g.claimIDsByKey[key] = c.ID
	g.claims[c.ID] = c
	g.edges[c.ChunkID+"|CONTAINS_CLAIM|"+c.ID] = c.BuildVersion
	g.edges[c.ID+"|EVIDENCE_FROM|"+c.ChunkID] = c.BuildVersion
	return c.ID, nil
}

func (g *memGraph) UpsertClaimRelation(_ context.Context, rel graphmodel.ClaimRelation, buildVersion string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[rel.FromClaimID+"|"+string(rel.Type)+"|"+rel.ToClaimID] = buildVersion
	return nil
}

func (g *memGraph) UpsertConceptRelation(_ context.Context, rel graphmodel.ConceptRelation, buildVersion string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[rel.FromConceptID+"|"+rel.Predicate+"|"+rel.ToConceptID] = buildVersion
	return nil
}

func (g *memGraph) UpsertTheme(_ context.Context, th graphmodel.Theme, memberships []graphmodel.BelongsToTheme, buildVersion string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.themes[th.ID] = th
	for _, m := range memberships {
		g.edges[m.MemberID+"|BELONGS_TO_THEME|"+m.ThemeID] = buildVersion
	}
	return nil
}

func (g *memGraph) RollbackBuild(_ context.Context, buildVersion string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range g.edges {
		if v == buildVersion {
			delete(g.edges, k)
		}
	}
	for id, c := range g.chunks {
		if c.BuildVersion == buildVersion {
			delete(g.chunks, id)
		}
	}
	for id, c := range g.claims {
		if c.BuildVersion == buildVersion {
			delete(g.claims, id)
			delete(g.claimIDsByKey, c.DocID+"|"+c.NormalizedTextHash)
		}
	}
	return nil
}

func (g *memGraph) counts() (chunks, concepts, claimCount, edges int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.chunks), len(g.conceptsByName), len(g.claims), len(g.edges)
}

type memEmbedder struct{}

func (memEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.5, 0.5}
	}
	return out, nil
}

type memReviews struct {
	mu    sync.Mutex
	items []cache.ReviewItem
}

func (r *memReviews) Push(_ context.Context, item cache.ReviewItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return nil
}

func (r *memReviews) Size(_ context.Context, buildVersion string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(0)
	for _, item := range r.items {
		if item.BuildVersion == buildVersion {
			n++
		}
	}
	return n, nil
}

type emptySource struct{}

func (emptySource) AliasLookup(context.Context, string) ([]graphmodel.Concept, error) {
	return nil, nil
}
func (emptySource) LexicalSearch(context.Context, string, int) ([]graphmodel.Concept, error) {
	return nil, nil
}
func (emptySource) VectorSearch(context.Context, []float32, int) ([]graphmodel.Concept, error) {
	return nil, nil
}

type stubProvider struct{ text string }

func (p stubProvider) ChatCompletion(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Text: p.text}, nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

const extractionJSON = `{"claims":[{"text":"Transformers use self-attention.","claim_type":"fact","modality":"assertive","polarity":"positive","certainty":0.9,"confidence":0.9,"sentence_ids":["s0"]}],"relations":[]}`

func testConfig() *config.Config {
	return &config.Config{
		Chunking: config.ChunkingConfig{WindowSentences: 4, Stride: 2, MaxChars: 1200},
		Linking:  config.EntityLinkingConfig{HighThreshold: 0.85, LowThreshold: 0.65, TopKPerSource: 8},
		Ontology: config.OntologyConfig{NodeTypes: []string{"Technology"}},
	}
}

func testIngestor(store GraphStore, reviews ReviewQueue) *Ingestor {
	cfg := testConfig()
	return &Ingestor{
		Store:     store,
		Embedder:  memEmbedder{},
		Linker:    linking.New(emptySource{}, cfg.Linking, cfg.Ontology),
		Claims:    &claims.Extractor{Provider: stubProvider{text: extractionJSON}},
		Themes:    &theme.Builder{Cfg: config.ThemeConfig{MinCommunitySize: 2}},
		Predicate: predicate.NewGovernor(cfg.Ontology, config.PredicateGovernorConfig{}, nil),
		Reviews:   reviews,
	}
}

func testContext(cfg *config.Config, buildVersion string) PipelineContext {
	return PipelineContext{
		Context:      context.Background(),
		Config:       cfg,
		Logger:       zerolog.Nop(),
		Metrics:      NoopMetrics{},
		Clock:        fixedClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		BuildVersion: buildVersion,
	}
}

const docText = "Transformers use self-attention. They scale well with data. Attention drives modern language models. Benchmarks confirm the gains."

func TestIngestDocument_PersistsChunksClaimsAndProposedConcepts(t *testing.T) {
	store := newMemGraph()
	ing := testIngestor(store, nil)
	pc := testContext(testConfig(), "b1")
	doc := graphmodel.Document{ID: "doc1", Kind: graphmodel.DocumentKindText}

	diag, err := ing.IngestDocument(pc, doc, docText, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diag.Counts["chunks"] == 0 {
		t.Fatalf("expected chunks persisted, got counts %v", diag.Counts)
	}
	if diag.Counts["claims"] == 0 {
		t.Fatalf("expected claims persisted, got counts %v", diag.Counts)
	}
	// With an empty concept store every mention is NIL, so Stage 6 must have
	// created proposed concepts with provenance edges.
	if diag.Counts["concepts_proposed"] == 0 {
		t.Fatalf("expected proposed concepts for NIL links, got counts %v", diag.Counts)
	}
	_, concepts, _, _ := store.counts()
	if concepts == 0 {
		t.Fatalf("expected concept nodes in the store")
	}
	foundEvidence := false
	for k := range store.edges {
		if strings.Contains(k, "|EVIDENCE_FROM|") {
			foundEvidence = true
		}
	}
	if !foundEvidence {
		t.Fatalf("expected EVIDENCE_FROM edges for provenance")
	}
}

func TestIngestDocument_SecondRunIsNetNoChange(t *testing.T) {
	store := newMemGraph()
	ing := testIngestor(store, nil)
	pc := testContext(testConfig(), "b1")
	doc := graphmodel.Document{ID: "doc1", Kind: graphmodel.DocumentKindText}

	if _, err := ing.IngestDocument(pc, doc, docText, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	chunks1, concepts1, claims1, edges1 := store.counts()

	if _, err := ing.IngestDocument(pc, doc, docText, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	chunks2, concepts2, claims2, edges2 := store.counts()

	if chunks1 != chunks2 || concepts1 != concepts2 || claims1 != claims2 || edges1 != edges2 {
		t.Fatalf("expected identical graph after re-run: chunks %d/%d concepts %d/%d claims %d/%d edges %d/%d",
			chunks1, chunks2, concepts1, concepts2, claims1, claims2, edges1, edges2)
	}
}

func TestIngestDocument_EmptyTextRejectedAsInputError(t *testing.T) {
	ing := testIngestor(newMemGraph(), nil)
	pc := testContext(testConfig(), "b1")

	_, err := ing.IngestDocument(pc, graphmodel.Document{ID: "doc1"}, "   \n", nil)
	pe, ok := err.(*PipelineError)
	if !ok {
		t.Fatalf("expected PipelineError, got %T: %v", err, err)
	}
	if pe.Kind != KindInput {
		t.Fatalf("expected input error kind, got %s", pe.Kind)
	}
}

func TestIngestDocument_CancellationStopsBetweenChunks(t *testing.T) {
	store := newMemGraph()
	ing := testIngestor(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pc := testContext(testConfig(), "b1")
	pc.Context = ctx

	_, err := ing.IngestDocument(pc, graphmodel.Document{ID: "doc1"}, docText, nil)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRollbackBuild_RemovesBuildScopedState(t *testing.T) {
	store := newMemGraph()
	ing := testIngestor(store, nil)
	pc := testContext(testConfig(), "b1")
	doc := graphmodel.Document{ID: "doc1", Kind: graphmodel.DocumentKindText}

	if _, err := ing.IngestDocument(pc, doc, docText, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := ing.RollbackBuild(pc, "b1"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	chunks, _, claimCount, edges := store.counts()
	if chunks != 0 || claimCount != 0 || edges != 0 {
		t.Fatalf("expected build-scoped state purged, got chunks=%d claims=%d edges=%d", chunks, claimCount, edges)
	}
}

func TestResolvePredicate_RejectedTripleGoesToReviewNotGraph(t *testing.T) {
	store := newMemGraph()
	reviews := &memReviews{}
	ing := testIngestor(store, reviews)
	pc := testContext(testConfig(), "b1")

	decision, err := ing.ResolvePredicate(pc, "c1", "Technology", "随机词", "c2", "Technology", 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Accepted {
		t.Fatalf("expected unmapped surface to be rejected")
	}
	if decision.Canonical != predicate.OTHER {
		t.Fatalf("expected OTHER, got %s", decision.Canonical)
	}
	if len(reviews.items) != 1 || reviews.items[0].Kind != "predicate" {
		t.Fatalf("expected one predicate review item, got %+v", reviews.items)
	}
	if _, _, _, edges := store.counts(); edges != 0 {
		t.Fatalf("rejected predicate must not reach the graph, got %d edges", edges)
	}
}

func TestRunThemeStage_PersistsThemesWithMemberships(t *testing.T) {
	store := newMemGraph()
	ing := testIngestor(store, nil)
	pc := testContext(testConfig(), "b1")

	nodes := []string{"a", "b", "c"}
	edges := []theme.Edge{{From: "a", To: "b", Weight: 1}, {From: "b", To: "c", Weight: 1}, {From: "a", To: "c", Weight: 1}}
	members := map[string]theme.Member{
		"a": {ID: "a", Degree: 2, Text: "self attention"},
		"b": {ID: "b", Degree: 2, Text: "transformers"},
		"c": {ID: "c", Degree: 2, Text: "language models"},
	}

	if err := ing.RunThemeStage(pc, nodes, edges, members, graphmodel.ThemeLevelCoarse); err != nil {
		t.Fatalf("theme stage: %v", err)
	}
	if len(store.themes) == 0 {
		t.Fatalf("expected at least one theme persisted")
	}
}

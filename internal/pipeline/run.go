package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"graphrag/internal/cache"
	"graphrag/internal/chunk"
	"graphrag/internal/claims"
	"graphrag/internal/coref"
	"graphrag/internal/graphmodel"
	"graphrag/internal/linking"
	"graphrag/internal/predicate"
	"graphrag/internal/theme"
)

// GraphStore is the Stage 6 write surface (plus the alias reads the NIL
// dedup path needs) the orchestrator drives. graphstore.Store implements it
// against Postgres/Qdrant; pipeline tests use an in-memory double.
type GraphStore interface {
	UpsertDocument(ctx context.Context, doc graphmodel.Document, buildVersion string) error
	UpsertChunk(ctx context.Context, chunk graphmodel.Chunk) error
	UpsertConcept(ctx context.Context, concept graphmodel.Concept, buildVersion string) (string, error)
	UpsertMention(ctx context.Context, m graphmodel.Mention, ev graphmodel.Evidence, buildVersion string) error
	AddAlias(ctx context.Context, alias graphmodel.Alias) error
	AliasLookup(ctx context.Context, surface string) ([]graphmodel.Concept, error)
	UpsertClaim(ctx context.Context, claim graphmodel.Claim) (string, error)
	UpsertClaimRelation(ctx context.Context, rel graphmodel.ClaimRelation, buildVersion string) error
	UpsertConceptRelation(ctx context.Context, rel graphmodel.ConceptRelation, buildVersion string) error
	UpsertTheme(ctx context.Context, theme graphmodel.Theme, memberships []graphmodel.BelongsToTheme, buildVersion string) error
	RollbackBuild(ctx context.Context, buildVersion string) error
}

// Embedder is the batched embedding-provider contract; embedding.Client
// implements it with an optional process-local cache.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ReviewQueue receives linking and predicate decisions that need a human
// verdict. Optional; a nil queue only drops the durable copy, review counts
// still reach the diagnostics.
type ReviewQueue interface {
	Push(ctx context.Context, item cache.ReviewItem) error
	Size(ctx context.Context, buildVersion string) (int64, error)
}

// Ingestor wires every stage package behind the dependencies a single
// ingestion run needs. Constructing one per build keeps the stage packages
// themselves free of storage or provider state.
type Ingestor struct {
	Store     GraphStore
	Embedder  Embedder
	Linker    *linking.Linker
	Claims    *claims.Extractor
	Themes    *theme.Builder
	Predicate *predicate.Governor
	Reviews   ReviewQueue
}

// IngestDocument runs Stages 0-3 and their Stage 6 writes over one
// document's raw text, persisting every derived node and edge under
// pc.BuildVersion. Stage 4 (theme detection) is run separately over the
// accumulated graph by RunThemeStage since it operates on the whole build,
// not a single document; Stage 5 runs per triple through ResolvePredicate.
func (ing *Ingestor) IngestDocument(pc PipelineContext, doc graphmodel.Document, text string, headings []graphmodel.HeadingNode) (*JobDiagnostics, error) {
	diag := NewJobDiagnostics(pc.BuildVersion, pc.Clock.Now())
	stage := pc.WithStage("ingest")

	if strings.TrimSpace(text) == "" {
		return diag, NewError(KindInput, "chunk", doc.ID, "document has no extractable text", nil)
	}

	if err := ing.Store.UpsertDocument(pc.Context, doc, pc.BuildVersion); err != nil {
		return diag, NewError(KindStoreTransient, "graphstore", doc.ID, "persist document", err)
	}
	diag.Count("documents", 1)

	sentences := chunk.Split(text)
	chunks := chunk.Window(doc.ID, sentences, pc.Config.Chunking, pc.BuildVersion)
	diag.Count("chunks", len(chunks))

	var antecedents []string
	canonicalClaims := map[string]string{}

	for _, c := range chunks {
		// The cancellation token is polled once per chunk; every external
		// call below also carries pc.Context.
		if err := pc.Context.Err(); err != nil {
			diag.Finish(pc.Clock.Now())
			return diag, err
		}

		result := coref.Resolve(c.Text, antecedents)
		c.ResolvedText = result.ResolvedText
		ing.persistAliases(pc, doc.ID, result, diag)
		antecedents = append(antecedents, keysOf(result.AliasMap)...)

		if embeddings, err := ing.Embedder.Embed(pc.Context, []string{c.ResolvedText}); err != nil {
			stage.Logger.Warn().Err(err).Str("chunk_id", c.ID).Msg("embedding failed, continuing without vector recall for this chunk")
		} else if len(embeddings) == 1 {
			c.Embedding = embeddings[0]
		}

		if err := ing.Store.UpsertChunk(pc.Context, c); err != nil {
			diag.Record(NewError(KindStoreTransient, "graphstore", doc.ID, "persist chunk", err))
			continue
		}
		evidence := graphmodel.Evidence{
			DocID:       c.DocID,
			ChunkID:     c.ID,
			SectionPath: c.SectionPath,
			SentenceIDs: c.SentenceIDs,
		}

		mentions := linking.DetectMentions(result.ResolvedText, result.AliasMap)
		links := ing.Linker.LinkChunk(stage.Context, c, mentions)
		ing.persistLinks(pc, doc, c, links, evidence, diag)

		extracted, relations, err := ing.Claims.Extract(stage.Context, c)
		if err != nil {
			diag.Record(NewError(KindParsing, "claims", doc.ID, "claim extraction", err))
			continue
		}
		ing.persistClaims(pc, doc, extracted, relations, canonicalClaims, diag)
	}

	if ing.Reviews != nil {
		if size, err := ing.Reviews.Size(pc.Context, pc.BuildVersion); err == nil {
			diag.ReviewQueueSize = int(size)
		}
	}

	diag.Finish(pc.Clock.Now())
	return diag, nil
}

// persistAliases appends the chunk's document-local alias rows: Stage 1's
// parenthesis aliases become the alias dictionary entries Stage 2 and later
// builds resolve against. Pronoun resolutions (score below 1.0) stay
// chunk-local; "it" is never a dictionary surface form.
func (ing *Ingestor) persistAliases(pc PipelineContext, docID string, result coref.Result, diag *JobDiagnostics) {
	for _, m := range result.Matches {
		if m.Ambiguous || m.Score < 1.0 {
			continue
		}
		alias := graphmodel.Alias{
			SurfaceForm: m.Surface,
			Canonical:   m.Canonical,
			DocID:       docID,
			Confidence:  m.Score,
			CreatedAt:   pc.Clock.Now(),
		}
		if err := ing.Store.AddAlias(pc.Context, alias); err != nil {
			diag.Record(NewError(KindStoreTransient, "graphstore", docID, "persist alias", err))
		}
	}
}

// persistLinks commits Stage 2's verdicts: accepted links become MENTIONS
// edges with chunk-level evidence, review-band links go to the review queue,
// and NIL proposals become Concept nodes unless an alias already resolves
// the surface form.
func (ing *Ingestor) persistLinks(pc PipelineContext, doc graphmodel.Document, c graphmodel.Chunk, links []linking.Link, evidence graphmodel.Evidence, diag *JobDiagnostics) {
	for _, l := range links {
		switch {
		case l.IsNil:
			conceptID, created, err := ing.resolveNIL(pc, doc, c, l)
			if err != nil {
				diag.Record(NewError(KindStoreTransient, "graphstore", doc.ID, "persist proposed concept", err))
				continue
			}
			if created {
				diag.Count("concepts_proposed", 1)
			}
			m := l.Evidence
			m.ConceptID = conceptID
			if err := ing.Store.UpsertMention(pc.Context, m, evidence, pc.BuildVersion); err != nil {
				diag.Record(NewError(KindStoreTransient, "graphstore", doc.ID, "persist mention", err))
			}
		case l.IsReview:
			diag.Count("review_queued", 1)
			if ing.Reviews != nil {
				payload := fmt.Sprintf(`{"mention":%q,"concept_id":%q,"chunk_id":%q,"confidence":%.3f}`,
					l.Mention, l.ConceptID, c.ID, l.Confidence)
				item := cache.ReviewItem{BuildVersion: pc.BuildVersion, Kind: "entity_link", Payload: []byte(payload)}
				if err := ing.Reviews.Push(pc.Context, item); err != nil {
					diag.Record(NewError(KindStoreTransient, "cache", doc.ID, "queue link for review", err))
				}
			}
		default:
			diag.Count("links", 1)
			if err := ing.Store.UpsertMention(pc.Context, l.Evidence, evidence, pc.BuildVersion); err != nil {
				diag.Record(NewError(KindStoreTransient, "graphstore", doc.ID, "persist mention", err))
			}
		}
	}
}

// resolveNIL turns a NIL verdict into a concept id: an existing alias match
// wins, otherwise a new Concept is created (UpsertConcept still dedups by
// exact name, so two documents proposing the same surface converge on one
// node).
func (ing *Ingestor) resolveNIL(pc PipelineContext, doc graphmodel.Document, c graphmodel.Chunk, l linking.Link) (string, bool, error) {
	if existing, err := ing.Store.AliasLookup(pc.Context, l.Mention); err == nil && len(existing) > 0 {
		return existing[0].ID, false, nil
	}
	concept := graphmodel.Concept{
		ID:        proposedConceptID(l.Mention),
		Name:      l.Mention,
		Source:    doc.ID,
		Embedding: c.Embedding,
		CreatedAt: pc.Clock.Now(),
	}
	id, err := ing.Store.UpsertConcept(pc.Context, concept, pc.BuildVersion)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// persistClaims commits Stage 3's output, rewriting relation endpoints to
// the ids the store actually resolved (a deduplicated claim keeps its first
// id, not the one this window minted).
func (ing *Ingestor) persistClaims(pc PipelineContext, doc graphmodel.Document, extracted []graphmodel.Claim, relations []graphmodel.ClaimRelation, canonicalClaims map[string]string, diag *JobDiagnostics) {
	resolvedIDs := make(map[string]string, len(extracted))
	for _, cl := range extracted {
		if existingID, ok := claims.FindCanonical(canonicalClaims, cl.Text); ok {
			cl.CanonicalID = existingID
		}
		if embeddings, err := ing.Embedder.Embed(pc.Context, []string{cl.Text}); err == nil && len(embeddings) == 1 {
			cl.Embedding = embeddings[0]
		}
		persistedID, err := ing.Store.UpsertClaim(pc.Context, cl)
		if err != nil {
			diag.Record(NewError(KindStoreTransient, "graphstore", doc.ID, "persist claim", err))
			continue
		}
		resolvedIDs[cl.ID] = persistedID
		cl.ID = persistedID
		if cl.CanonicalID == "" {
			claims.RememberCanonical(canonicalClaims, cl)
		}
		diag.Count("claims", 1)
	}
	for _, rel := range relations {
		fromID, okFrom := resolvedIDs[rel.FromClaimID]
		toID, okTo := resolvedIDs[rel.ToClaimID]
		if !okFrom || !okTo {
			continue
		}
		rel.FromClaimID, rel.ToClaimID = fromID, toID
		if err := ing.Store.UpsertClaimRelation(pc.Context, rel, pc.BuildVersion); err != nil {
			diag.Record(NewError(KindStoreTransient, "graphstore", doc.ID, "persist claim relation", err))
		} else {
			diag.Count("claim_relations", 1)
		}
	}
}

// ResolvePredicate runs Stage 5 over one proposed (subject, surface, object)
// triple and, if accepted, persists the ConceptRelation edge. Rejected
// triples go to the review queue instead of the graph.
func (ing *Ingestor) ResolvePredicate(pc PipelineContext, subjectID, subjectType, surface, objectID, objectType string, confidence float64) (predicate.Decision, error) {
	decision := ing.Predicate.Resolve(surface, subjectType, objectType)
	if !decision.Accepted {
		if ing.Reviews != nil {
			payload := fmt.Sprintf(`{"surface":%q,"subject_id":%q,"object_id":%q,"reason":%q}`,
				surface, subjectID, objectID, decision.Reason)
			item := cache.ReviewItem{BuildVersion: pc.BuildVersion, Kind: "predicate", Payload: []byte(payload)}
			if err := ing.Reviews.Push(pc.Context, item); err != nil {
				return decision, NewError(KindStoreTransient, "cache", "", "queue predicate for review", err)
			}
		}
		return decision, nil
	}
	rel := graphmodel.ConceptRelation{FromConceptID: subjectID, ToConceptID: objectID, Predicate: decision.Canonical, Confidence: confidence}
	if err := ing.Store.UpsertConceptRelation(pc.Context, rel, pc.BuildVersion); err != nil {
		return decision, NewError(KindStoreTransient, "graphstore", "", "persist concept relation", err)
	}
	return decision, nil
}

// RunThemeStage runs Stage 4 over the full concept/claim subgraph touched by
// this build: nodeIDs and edges are the projection the caller assembled from
// the graph store (typically every Concept and Claim written under
// pc.BuildVersion plus their predicate/co-membership edges).
func (ing *Ingestor) RunThemeStage(pc PipelineContext, nodeIDs []string, edges []theme.Edge, members map[string]theme.Member, level graphmodel.ThemeLevel) error {
	groups := theme.Detect(nodeIDs, edges)
	themes, memberships := ing.Themes.BuildThemes(pc.Context, groups, members, level)

	// Each theme's embed-then-persist is independent of every other, so they
	// fan out concurrently rather than paying embedding-provider latency once
	// per theme in sequence.
	g, gctx := errgroup.WithContext(pc.Context)
	for i := range themes {
		i := i
		g.Go(func() error {
			th := themes[i]
			themeMemberships := membershipsFor(memberships, th.ID)
			if embeddings, err := ing.Embedder.Embed(gctx, []string{th.Label + " " + th.Summary}); err == nil && len(embeddings) == 1 {
				th.Embedding = embeddings[0]
			}
			if err := ing.Store.UpsertTheme(gctx, th, themeMemberships, pc.BuildVersion); err != nil {
				return NewError(KindStoreTransient, "graphstore", "", fmt.Sprintf("persist theme %s", th.ID), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RollbackBuild deletes every non-Concept node and edge stamped with
// buildVersion, per the idempotent-rebuild invariant: failed or superseded
// runs never leave partial claims, chunks or themes behind.
func (ing *Ingestor) RollbackBuild(pc PipelineContext, buildVersion string) error {
	return ing.Store.RollbackBuild(pc.Context, buildVersion)
}

func proposedConceptID(name string) string {
	sum := sha256.Sum256([]byte("concept|" + name))
	return hex.EncodeToString(sum[:])[:32]
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func membershipsFor(all []graphmodel.BelongsToTheme, themeID string) []graphmodel.BelongsToTheme {
	var out []graphmodel.BelongsToTheme
	for _, m := range all {
		if m.ThemeID == themeID {
			out = append(out, m)
		}
	}
	return out
}

// Command graphrag-ingest runs the ingestion pipeline over one document: it
// reads raw text from a file or URL, chunks, resolves coreference, links
// entities, extracts claims, governs predicates and persists the resulting
// graph under a freshly minted build_version.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	zlog "github.com/rs/zerolog/log"

	"graphrag/internal/blobstore"
	"graphrag/internal/cache"
	"graphrag/internal/chunk"
	"graphrag/internal/claims"
	"graphrag/internal/config"
	"graphrag/internal/embedding"
	"graphrag/internal/eventbus"
	"graphrag/internal/feedback"
	"graphrag/internal/graphmodel"
	"graphrag/internal/graphstore"
	"graphrag/internal/linking"
	"graphrag/internal/llm/providers"
	"graphrag/internal/observability"
	"graphrag/internal/pipeline"
	"graphrag/internal/predicate"
	"graphrag/internal/telemetry"
	"graphrag/internal/theme"
	"graphrag/internal/webfetch"
)

func main() {
	log.SetFlags(0)
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		envPath    = flag.String("env", ".env", "path to dotenv file")
		url        = flag.String("url", "", "fetch and ingest a single web page")
		filePath   = flag.String("file", "", "ingest a single local markdown/text file")
	)
	flag.Parse()

	if *url == "" && *filePath == "" {
		log.Fatal("one of -url or -file is required")
	}

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	observability.InitLogger(cfg.Logging.LogPath, cfg.Logging.Level, cfg.Telemetry.Enabled)
	logger := zlog.Logger.With().Str("component", "graphrag-ingest").Logger()

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		log.Fatalf("setup telemetry: %v", err)
	}
	defer shutdownTelemetry(ctx)

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	vector, err := graphstore.NewVectorIndex(cfg.Qdrant.DSN, cfg.Qdrant.Collection, cfg.EmbedDim, cfg.Qdrant.Metric)
	if err != nil {
		log.Fatalf("connect qdrant: %v", err)
	}

	store := graphstore.New(pool, vector)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	if err := store.EnsureAliasSchema(ctx); err != nil {
		log.Fatalf("ensure alias schema: %v", err)
	}

	llmProvider, err := providers.Build(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("build llm provider: %v", err)
	}

	var synonyms predicate.SynonymLookup
	var reviews pipeline.ReviewQueue
	if cfg.Redis.Addr != "" {
		synonyms = cache.NewSynonymLookup(cache.NewSynonymCache(cfg.Redis), cfg.Embedding)
		reviews = cache.NewReviewQueue(cfg.Redis)
	}

	embedder := &embedding.Client{Cfg: cfg.Embedding, Cache: cache.NewEmbeddingCache(0)}
	governor := predicate.NewGovernor(cfg.Ontology, cfg.Predicate, synonyms)
	linker := linking.New(store, cfg.Linking, cfg.Ontology)
	extractor := &claims.Extractor{Provider: llmProvider, Cfg: cfg.Claims, Model: cfg.LLM.Model}
	themeBuilder := &theme.Builder{Provider: llmProvider, Cfg: cfg.Theme, Model: cfg.LLM.Model}

	ingestor := &pipeline.Ingestor{
		Store:     store,
		Embedder:  embedder,
		Linker:    linker,
		Claims:    extractor,
		Themes:    themeBuilder,
		Predicate: governor,
		Reviews:   reviews,
	}

	blobs, err := blobstore.NewS3(ctx, cfg.Blob)
	if err != nil {
		logger.Warn().Err(err).Msg("object store unavailable, raw content will not be archived")
	}

	publisher := eventbus.NewPublisher(cfg.Kafka)
	defer publisher.Close()

	var text string
	var docKind graphmodel.DocumentKind
	var headings []graphmodel.HeadingNode

	switch {
	case *url != "":
		fetcher := webfetch.New(15 * time.Second)
		page, err := fetcher.Fetch(ctx, *url)
		if err != nil {
			log.Fatalf("fetch %s: %v", *url, err)
		}
		text = page.Markdown
		docKind = graphmodel.DocumentKindWebPage
	case *filePath != "":
		data, err := os.ReadFile(*filePath)
		if err != nil {
			log.Fatalf("read %s: %v", *filePath, err)
		}
		text = string(data)
		docKind = graphmodel.DocumentKindMarkdown
	}

	doc := graphmodel.Document{
		ID:        chunk.DocumentID(text),
		Kind:      docKind,
		Size:      int64(len(text)),
		CreatedAt: time.Now().UTC(),
		Status:    graphmodel.DocumentStatusPending,
	}

	if blobs != nil {
		if err := blobs.Put(ctx, doc.ID, "text/markdown", []byte(text)); err != nil {
			logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("failed to archive raw content")
		}
	}

	buildVersion := pipeline.NewBuildVersion(cfg.BuildVersionPrefix)
	pc := pipeline.PipelineContext{
		Context:      ctx,
		Config:       cfg,
		Logger:       logger,
		Metrics:      pipeline.NoopMetrics{},
		Clock:        pipeline.SystemClock{},
		BuildVersion: buildVersion,
	}

	diag, err := ingestor.IngestDocument(pc, doc, text, headings)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	for _, e := range diag.Errors {
		logger.Warn().Err(e).Msg("stage error during ingestion")
	}

	nodeIDs, themeEdges, members, err := store.BuildProjection(ctx, buildVersion)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("theme projection failed, skipping theme stage")
	default:
		if err := ingestor.RunThemeStage(pc, nodeIDs, themeEdges, members, graphmodel.ThemeLevelCoarse); err != nil {
			logger.Warn().Err(err).Msg("coarse theme stage failed")
		} else if cfg.Theme.EnableFineLevel {
			for _, group := range theme.Detect(nodeIDs, themeEdges) {
				if len(group) < cfg.Theme.MinCommunitySize {
					continue
				}
				sub := theme.Induced(themeEdges, group)
				if err := ingestor.RunThemeStage(pc, group, sub, members, graphmodel.ThemeLevelFine); err != nil {
					logger.Warn().Err(err).Msg("fine theme stage failed")
				}
			}
		}
	}
	logger.Info().
		Str("build_version", buildVersion).
		Interface("counts", diag.Counts).
		Msg("ingestion complete")

	if err := publisher.PublishBuildCommitted(ctx, eventbus.BuildCommitted{
		BuildVersion: buildVersion,
		DocumentIDs:  []string{doc.ID},
		CommittedAt:  diag.FinishedAt,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to publish build-committed event")
	}

	metricsStore, err := feedback.NewMetricsStore(ctx, cfg.ClickHouse)
	if err != nil {
		logger.Warn().Err(err).Msg("metrics store unavailable, skipping build_metrics flush")
		return
	}
	defer metricsStore.Close()
	if err := metricsStore.EnsureSchema(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure metrics schema")
		return
	}
	metrics := feedback.Compute(feedback.MetricsInput{
		BuildVersion:      buildVersion,
		LinkedMentions:    diag.Counts["links"],
		NodesWithEvidence: diag.Counts["claims"] + diag.Counts["concepts_proposed"],
		TotalNodes:        diag.Counts["claims"] + diag.Counts["concepts_proposed"],
	})
	if err := metricsStore.Append(ctx, metrics, diag.FinishedAt); err != nil {
		logger.Warn().Err(err).Msg("append build_metrics row")
	}
}

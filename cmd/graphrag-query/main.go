// Command graphrag-query answers a single question over a previously
// ingested graph using Stage 7's theme-first hybrid retrieval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"graphrag/internal/config"
	"graphrag/internal/embedding"
	"graphrag/internal/graphstore"
	"graphrag/internal/llm/providers"
	"graphrag/internal/observability"
	"graphrag/internal/query"
)

// embedderAdapter adapts the batch embedding.EmbedText call to the
// single-text query.Embedder interface Stage 7 depends on.
type embedderAdapter struct {
	cfg config.EmbeddingConfig
}

func (a embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := embedding.EmbedText(ctx, a.cfg, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vectors")
	}
	return out[0], nil
}

func main() {
	log.SetFlags(0)
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		envPath    = flag.String("env", ".env", "path to dotenv file")
		question   = flag.String("q", "", "question to answer")
		mode       = flag.String("mode", "hybrid", "retrieval mode: local, global, hybrid")
	)
	flag.Parse()

	if *question == "" {
		log.Fatal("-q is required")
	}

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	observability.InitLogger(cfg.Logging.LogPath, cfg.Logging.Level, false)

	ctx := context.Background()

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

	llmProvider, err := providers.Build(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("build llm provider: %v", err)
	}

	svc := &query.Service{
		Store:    store,
		Embedder: embedderAdapter{cfg: cfg.Embedding},
		Provider: llmProvider,
		Cfg:      cfg.Retrieval,
		Model:    cfg.LLM.Model,
	}

	result, err := svc.Answer(ctx, *question, query.Mode(*mode), cfg.Retrieval.TopK)
	if err != nil {
		log.Fatalf("answer: %v", err)
	}

	fmt.Println(result.Answer)
	fmt.Println()
	fmt.Println("Evidence:")
	for _, e := range result.Evidence {
		fmt.Printf("  - doc=%s chunk=%s section=%v\n", e.DocID, e.ChunkID, e.SectionPath)
	}
}

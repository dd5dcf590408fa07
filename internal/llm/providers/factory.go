// Package providers selects a concrete llm.Provider from configuration.
package providers

import (
	"context"
	"fmt"

	"graphrag/internal/config"
	"graphrag/internal/llm"
	"graphrag/internal/llm/anthropic"
	"graphrag/internal/llm/google"
	openaillm "graphrag/internal/llm/openai"
)

// Build constructs an llm.Provider for the configured deployment.
func Build(ctx context.Context, cfg config.LLMProviderConfig) (llm.Provider, error) {
	llm.ConfigureLogging(cfg.LogPayloads)
	switch cfg.Provider {
	case "", "openai":
		return openaillm.New(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return anthropic.New(cfg.APIKey, cfg.BaseURL), nil
	case "google":
		return google.New(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

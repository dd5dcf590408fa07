package llm

import (
	"context"
	"encoding/json"
	"sync"

	"graphrag/internal/observability"
)

var (
	mu                   sync.RWMutex
	enablePayloadLogging = false
)

// ConfigureLogging toggles debug-level prompt/response logging for every
// Provider. Call once at startup from the configured LLMProviderConfig.
func ConfigureLogging(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	enablePayloadLogging = enable
}

func shouldLog() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enablePayloadLogging
}

// LogRedactedPrompt logs req.Messages at debug level with sensitive fields
// redacted. No-op unless ConfigureLogging(true) was called.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	if !shouldLog() {
		return
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	logger := observability.LoggerWithTrace(ctx, nil)
	logger.With().RawJSON("prompt", observability.RedactJSON(b)).Logger().Debug().Msg("llm_request")
}

// LogRedactedResponse logs resp at debug level with sensitive fields
// redacted. No-op unless ConfigureLogging(true) was called.
func LogRedactedResponse(ctx context.Context, resp Response) {
	if !shouldLog() {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	logger := observability.LoggerWithTrace(ctx, nil)
	logger.With().RawJSON("response", observability.RedactJSON(b)).Logger().Debug().Msg("llm_response")
}

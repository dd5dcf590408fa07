// Package llm defines the provider-agnostic chat-completion contract used by
// the claim extractor, theme builder and query service: a single
// non-streaming call that takes messages, model, max_tokens and temperature
// and returns text plus usage. Streaming, tool calls and image inputs are
// deliberately absent; no stage needs them, and concrete adapters wrap the
// real provider SDKs behind this one method.
package llm

import "context"

// Message is one turn of a chat-completion request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Request is a single, non-streaming chat completion call.
type Request struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed chat-completion call.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is implemented by each concrete backend (Anthropic, OpenAI,
// Google). Stages depend only on this interface, never a concrete client.
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (Response, error)
}

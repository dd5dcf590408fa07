// Package openai adapts the OpenAI Chat Completions API to the llm.Provider
// contract.
package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"graphrag/internal/llm"
	"graphrag/internal/observability"
)

// Client wraps the OpenAI SDK behind the pipeline's minimal chat-completion
// contract. The same client also serves OpenAI-compatible self-hosted
// endpoints by overriding baseURL.
type Client struct {
	sdk openaisdk.Client
}

// New constructs a Client. baseURL may be empty to use the default endpoint.
func New(apiKey, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithHTTPClient(observability.NewHTTPClient(nil))}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	return &Client{sdk: openaisdk.NewClient(opts...)}
}

// ChatCompletion issues one non-streaming Chat Completions call.
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (llm.Response, error) {
	var messages []openaisdk.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openaisdk.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openaisdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(m.Content))
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openaisdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.MaxTokens))
	}

	llm.LogRedactedPrompt(ctx, req.Messages)

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("openai chat completion: no choices returned")
	}

	out := llm.Response{
		Text: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	llm.LogRedactedResponse(ctx, out)
	return out, nil
}

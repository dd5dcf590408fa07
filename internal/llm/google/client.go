// Package google adapts the Gemini GenerateContent API to the llm.Provider
// contract.
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"graphrag/internal/llm"
)

// Client wraps the google.golang.org/genai SDK behind the pipeline's minimal
// chat-completion contract.
type Client struct {
	sdk   *genai.Client
	model string
}

// New constructs a Client for the default model. Per-request req.Model
// overrides it when non-empty.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("google genai client: %w", err)
	}
	return &Client{sdk: sdk, model: model}, nil
}

// ChatCompletion issues one non-streaming GenerateContent call.
func (c *Client) ChatCompletion(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var system string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	llm.LogRedactedPrompt(ctx, req.Messages)

	resp, err := c.sdk.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.Response{}, fmt.Errorf("google chat completion: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
	}

	usage := llm.Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	out := llm.Response{Text: text.String(), Usage: usage}
	llm.LogRedactedResponse(ctx, out)
	return out, nil
}

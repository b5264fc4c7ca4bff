package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/carelyhq/carely/internal/config"
)

type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func newAnthropicClient(cfg *config.Config) *anthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.Provider.APIKey)}
	if url := strings.TrimSpace(cfg.Provider.BaseURL); url != "" {
		opts = append(opts, option.WithBaseURL(url))
	}
	return &anthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Agent.Model,
		maxTokens: cfg.Agent.MaxTokens,
	}
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	prompt := req.Prompt
	if req.JSONMode {
		// The Messages API has no response_format knob; pin the contract
		// in the prompt instead.
		prompt += "\n\nRespond with a single strict JSON object and nothing else."
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: param.NewOpt(req.Temperature),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return "", fmt.Errorf("anthropic complete: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("anthropic complete: empty response")
	}
	return out, nil
}

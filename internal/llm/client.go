// Package llm provides a thin text-completion client over the configured
// model provider. Callers treat generation as an opaque primitive: prompt
// in, text out, with explicit token and stop control.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/carelyhq/carely/internal/config"
)

// Request is one completion call. JSONMode asks the provider for a strict
// JSON object response where supported.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
	JSONMode    bool
}

// Client generates a text completion for a request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError wraps a provider failure with its HTTP status so callers can
// distinguish rate limiting from other failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is a provider rate-limit rejection.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// NewClient builds a client for the configured provider type.
func NewClient(cfg *config.Config) (Client, error) {
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return nil, fmt.Errorf("missing provider api key")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Type)) {
	case "", "anthropic":
		return newAnthropicClient(cfg), nil
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}

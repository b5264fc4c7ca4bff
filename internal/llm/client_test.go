package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carelyhq/carely/internal/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider.Type = "openai"
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = baseURL
	cfg.Agent.Model = "test-model"
	return cfg
}

func TestOpenAIComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "  hello there  "}},
			},
		})
	}))
	defer srv.Close()

	c := newOpenAIClient(testConfig(srv.URL))
	out, err := c.Complete(context.Background(), Request{
		Prompt:    "hi",
		MaxTokens: 100,
		JSONMode:  true,
		Stop:      []string{"\n\n"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello there" {
		t.Errorf("out = %q", out)
	}
	if gotBody["max_tokens"] != float64(100) {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
	if _, ok := gotBody["response_format"]; !ok {
		t.Error("expected response_format in json mode")
	}
	if _, ok := gotBody["stop"]; !ok {
		t.Error("expected stop sequences")
	}
}

func TestOpenAICompleteRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := newOpenAIClient(testConfig(srv.URL))
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRateLimit(err) {
		t.Errorf("IsRateLimit = false for %v", err)
	}
}

func TestOpenAICompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newOpenAIClient(testConfig(srv.URL))
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRateLimit(err) {
		t.Error("500 should not be classified as rate limit")
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name         string
		providerType string
		apiKey       string
		wantErr      bool
	}{
		{"anthropic default", "", "key", false},
		{"anthropic explicit", "anthropic", "key", false},
		{"openai", "openai", "key", false},
		{"missing key", "anthropic", "", true},
		{"unknown provider", "groq", "key", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Provider.Type = tt.providerType
			cfg.Provider.APIKey = tt.apiKey
			_, err := NewClient(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

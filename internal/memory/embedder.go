package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/carelyhq/carely/internal/config"
)

const (
	embeddingProviderLocal = "local"
	embeddingProviderAPI   = "api"
)

// Embedder maps text to a vector. Implementations must be deterministic
// for identical input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// NewEmbedder builds the configured embedder wrapped in a read-through
// cache, so repeated embeddings of the same text (re-indexing, retries)
// cost nothing.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	var inner Embedder
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", embeddingProviderLocal:
		inner = newLocalEmbedder(cfg.Dimension)
	case embeddingProviderAPI:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("embedding provider %q requires a base url", cfg.Provider)
		}
		inner = newAPIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return newCachedEmbedder(inner, cfg.CacheSize)
}

// localEmbedder is a deterministic token-hash bag-of-words embedder.
// Texts sharing tokens land near each other in cosine space, which is
// enough for similarity retrieval without a model server.
type localEmbedder struct {
	dimension int
}

func newLocalEmbedder(dimension int) *localEmbedder {
	if dimension <= 0 {
		dimension = config.DefaultEmbeddingDimension
	}
	return &localEmbedder{dimension: dimension}
}

func (e *localEmbedder) Dimension() int { return e.dimension }

func (e *localEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:'\"()[]")
		if token == "" {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		hash := h.Sum64()

		idx := int(hash % uint64(e.dimension))
		sign := float32(1)
		if hash&(1<<63) != 0 {
			sign = -1
		}
		vec[idx] += sign
	}

	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
}

// apiEmbedder talks to an OpenAI-compatible /embeddings endpoint.
type apiEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
}

func newAPIEmbedder(cfg config.EmbeddingConfig) *apiEmbedder {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultEmbeddingTimeoutMs) * time.Millisecond
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = config.DefaultEmbeddingDimension
	}
	return &apiEmbedder{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *apiEmbedder) Dimension() int { return e.dimension }

func (e *apiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"model": e.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	vec := decoded.Data[0].Embedding
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), e.dimension)
	}
	return vec, nil
}

// cachedEmbedder is a ristretto read-through cache over another embedder.
type cachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

func newCachedEmbedder(inner Embedder, size int) (*cachedEmbedder, error) {
	if size <= 0 {
		size = config.DefaultEmbeddingCacheSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &cachedEmbedder{inner: inner, cache: cache}, nil
}

func (e *cachedEmbedder) Dimension() int { return e.inner.Dimension() }

func (e *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, 1)
	return vec, nil
}

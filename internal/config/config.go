package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel       = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7

	DefaultShortTermWindow = 8
	DefaultFusionTopK      = 3
	DefaultEventHorizon    = 30

	DefaultEmbeddingProvider  = "local"
	DefaultEmbeddingDimension = 384
	DefaultEmbeddingTimeoutMs = 10000
	DefaultEmbeddingCacheSize = 4096

	DefaultDailySummarySpec = "30 23 * * *"
)

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Memory    MemoryConfig    `json:"memory"`
	Alerts    AlertsConfig    `json:"alerts"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type AgentConfig struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type MemoryConfig struct {
	DBPath          string          `json:"dbPath,omitempty"`
	VectorPath      string          `json:"vectorPath,omitempty"`
	ShortTermWindow int             `json:"shortTermWindow,omitempty"`
	FusionTopK      int             `json:"fusionTopK,omitempty"`
	Embedding       EmbeddingConfig `json:"embedding"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider,omitempty"` // "local" (default) or "api"
	Model     string `json:"model,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
	CacheSize int    `json:"cacheSize,omitempty"`
}

type AlertsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chatId,omitempty"`
}

type SchedulerConfig struct {
	Enabled          bool   `json:"enabled"`
	DailySummarySpec string `json:"dailySummarySpec,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		Provider: ProviderConfig{},
		Memory: MemoryConfig{
			ShortTermWindow: DefaultShortTermWindow,
			FusionTopK:      DefaultFusionTopK,
			Embedding: EmbeddingConfig{
				Provider:  DefaultEmbeddingProvider,
				Dimension: DefaultEmbeddingDimension,
				TimeoutMs: DefaultEmbeddingTimeoutMs,
				CacheSize: DefaultEmbeddingCacheSize,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			DailySummarySpec: DefaultDailySummarySpec,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".carely")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("CARELY_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("CARELY_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("CARELY_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if dbPath := os.Getenv("CARELY_DB_PATH"); dbPath != "" {
		cfg.Memory.DBPath = dbPath
	}
	if vecPath := os.Getenv("CARELY_VECTOR_PATH"); vecPath != "" {
		cfg.Memory.VectorPath = vecPath
	}
	if provider := os.Getenv("CARELY_EMBEDDING_PROVIDER"); provider != "" {
		cfg.Memory.Embedding.Provider = provider
	}
	if model := os.Getenv("CARELY_EMBEDDING_MODEL"); model != "" {
		cfg.Memory.Embedding.Model = model
	}
	if key := os.Getenv("CARELY_EMBEDDING_API_KEY"); key != "" {
		cfg.Memory.Embedding.APIKey = key
	}
	if url := os.Getenv("CARELY_EMBEDDING_BASE_URL"); url != "" {
		cfg.Memory.Embedding.BaseURL = url
	}
	if token := os.Getenv("CARELY_TELEGRAM_TOKEN"); token != "" {
		cfg.Alerts.Telegram.Token = token
	}
	if chatID := os.Getenv("CARELY_TELEGRAM_CHAT_ID"); chatID != "" {
		if parsed, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Alerts.Telegram.ChatID = parsed
		}
	}

	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = filepath.Join(DataDir(), "carely.db")
	}
	if cfg.Memory.VectorPath == "" {
		cfg.Memory.VectorPath = filepath.Join(DataDir(), "vectors")
	}
	if cfg.Memory.ShortTermWindow <= 0 {
		cfg.Memory.ShortTermWindow = DefaultShortTermWindow
	}
	if cfg.Memory.FusionTopK <= 0 {
		cfg.Memory.FusionTopK = DefaultFusionTopK
	}
	if cfg.Memory.Embedding.Provider == "" {
		cfg.Memory.Embedding.Provider = DefaultEmbeddingProvider
	}
	if cfg.Memory.Embedding.Dimension <= 0 {
		cfg.Memory.Embedding.Dimension = DefaultEmbeddingDimension
	}
	if cfg.Memory.Embedding.TimeoutMs <= 0 {
		cfg.Memory.Embedding.TimeoutMs = DefaultEmbeddingTimeoutMs
	}
	if cfg.Memory.Embedding.CacheSize <= 0 {
		cfg.Memory.Embedding.CacheSize = DefaultEmbeddingCacheSize
	}
	if cfg.Scheduler.DailySummarySpec == "" {
		cfg.Scheduler.DailySummarySpec = DefaultDailySummarySpec
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/avensora/strata/internal/importance"
)

const (
	// DefaultLongTermThreshold is the minimum importance for consolidation
	// into long-term memory.
	DefaultLongTermThreshold = 0.7

	// DefaultMaxEpisodes caps the episodic log.
	DefaultMaxEpisodes = 1000

	// DefaultMaxWorkingItems caps the working set.
	DefaultMaxWorkingItems = 100

	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// retrieval match.
	DefaultSimilarityThreshold = 0.5
)

// Config holds all configuration for strata.
type Config struct {
	Store      StoreConfig        `mapstructure:"store"`
	Embedding  EmbeddingConfig    `mapstructure:"embedding"`
	Retrieval  RetrievalConfig    `mapstructure:"retrieval"`
	Importance importance.Weights `mapstructure:"importance"`
	API        APIConfig          `mapstructure:"api"`
	Logging    LoggingConfig      `mapstructure:"logging"`
}

// StoreConfig holds tier bounds, promotion policy, and schedule intervals.
type StoreConfig struct {
	AgentID                 string        `mapstructure:"agent_id"`
	DataDir                 string        `mapstructure:"data_dir"`
	LongTermThreshold       float64       `mapstructure:"long_term_threshold"`
	ShortTermRetentionHours int           `mapstructure:"short_term_retention_hours"`
	SweepAgeHours           int           `mapstructure:"sweep_age_hours"`
	MaxEpisodes             int           `mapstructure:"max_episodes"`
	MaxWorkingItems         int           `mapstructure:"max_working_items"`
	QueueSize               int           `mapstructure:"queue_size"`
	ConsolidationInterval   time.Duration `mapstructure:"consolidation_interval"`
	EvictionInterval        time.Duration `mapstructure:"eviction_interval"`
	AutosaveInterval        time.Duration `mapstructure:"autosave_interval"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider     string       `mapstructure:"provider"`
	Dimension    int          `mapstructure:"dimension"`
	CacheEntries int64        `mapstructure:"cache_entries"`
	Ollama       OllamaConfig `mapstructure:"ollama"`
}

// OllamaConfig holds Ollama embedding service settings.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	MaxResults          int     `mapstructure:"max_results"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// String returns a safe representation of APIConfig with the token masked.
func (c APIConfig) String() string {
	return fmt.Sprintf("APIConfig{ListenAddr:%s, AuthToken:%s}", c.ListenAddr, maskToken(c.AuthToken))
}

// maskToken shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskToken(token string) string {
	const visible = 4
	if token == "" {
		return ""
	}
	if len(token) <= visible*2 {
		return "***"
	}
	return token[:visible] + "****" + token[len(token)-visible:]
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.agent_id", "default")
	v.SetDefault("store.data_dir", filepath.Join(homeDir(), ".strata", "data"))
	v.SetDefault("store.long_term_threshold", DefaultLongTermThreshold)
	v.SetDefault("store.short_term_retention_hours", 24)
	v.SetDefault("store.sweep_age_hours", 2)
	v.SetDefault("store.max_episodes", DefaultMaxEpisodes)
	v.SetDefault("store.max_working_items", DefaultMaxWorkingItems)
	v.SetDefault("store.queue_size", 1024)
	v.SetDefault("store.consolidation_interval", time.Hour)
	v.SetDefault("store.eviction_interval", 24*time.Hour)
	v.SetDefault("store.autosave_interval", 5*time.Minute)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.cache_entries", 4096)
	v.SetDefault("embedding.ollama.base_url", "http://localhost:11434")
	v.SetDefault("embedding.ollama.model", "nomic-embed-text")

	v.SetDefault("retrieval.max_results", 10)
	v.SetDefault("retrieval.similarity_threshold", DefaultSimilarityThreshold)

	weights := importance.DefaultWeights()
	v.SetDefault("importance.base", weights.Base)
	v.SetDefault("importance.intensity", weights.Intensity)
	v.SetDefault("importance.confidence", weights.Confidence)
	v.SetDefault("importance.satisfaction", weights.Satisfaction)
	v.SetDefault("importance.speed", weights.Speed)

	v.SetDefault("api.listen_addr", ":8600")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".strata"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("STRATA")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("store.agent_id", "STRATA_AGENT_ID")
	_ = v.BindEnv("store.data_dir", "STRATA_DATA_DIR")
	_ = v.BindEnv("embedding.provider", "STRATA_EMBEDDING_PROVIDER")
	_ = v.BindEnv("embedding.ollama.base_url", "STRATA_OLLAMA_BASE_URL")
	_ = v.BindEnv("api.listen_addr", "STRATA_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "STRATA_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Store.AgentID == "" {
		return fmt.Errorf("store.agent_id must not be empty")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must not be empty")
	}
	if c.Store.LongTermThreshold < 0 || c.Store.LongTermThreshold > 1 {
		return fmt.Errorf("store.long_term_threshold must be between 0 and 1")
	}
	if c.Store.ShortTermRetentionHours <= 0 {
		return fmt.Errorf("store.short_term_retention_hours must be greater than 0")
	}
	if c.Store.SweepAgeHours <= 0 {
		return fmt.Errorf("store.sweep_age_hours must be greater than 0")
	}
	if c.Store.MaxEpisodes <= 0 {
		return fmt.Errorf("store.max_episodes must be greater than 0")
	}
	if c.Store.MaxWorkingItems <= 0 {
		return fmt.Errorf("store.max_working_items must be greater than 0")
	}
	if c.Store.QueueSize <= 0 {
		return fmt.Errorf("store.queue_size must be greater than 0")
	}
	if c.Store.ConsolidationInterval <= 0 {
		return fmt.Errorf("store.consolidation_interval must be greater than 0")
	}
	if c.Store.EvictionInterval <= 0 {
		return fmt.Errorf("store.eviction_interval must be greater than 0")
	}
	if c.Store.AutosaveInterval <= 0 {
		return fmt.Errorf("store.autosave_interval must be greater than 0")
	}
	if c.Embedding.Provider != "hash" && c.Embedding.Provider != "ollama" {
		return fmt.Errorf("embedding.provider must be hash or ollama, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be greater than 0")
	}
	if c.Embedding.CacheEntries < 0 {
		return fmt.Errorf("embedding.cache_entries must be >= 0")
	}
	if c.Embedding.Provider == "ollama" && c.Embedding.Ollama.BaseURL == "" {
		return fmt.Errorf("embedding.ollama.base_url must not be empty")
	}
	if c.Retrieval.MaxResults <= 0 {
		return fmt.Errorf("retrieval.max_results must be greater than 0")
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be between 0 and 1")
	}
	if err := c.Importance.Validate(); err != nil {
		return fmt.Errorf("importance weights: %w", err)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

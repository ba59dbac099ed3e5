package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Ranking     RankingConfig     `mapstructure:"ranking"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Consolidate ConsolidateConfig `mapstructure:"consolidate"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	Graph       GraphConfig       `mapstructure:"graph"`
	RestAPI     RestAPIConfig     `mapstructure:"rest_api"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

// StorageConfig selects and locates the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "sqlite" or "remote"
	Path    string `mapstructure:"path"`
}

// EmbeddingConfig configures the embedding adapter.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // "hash" or "remote"
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	EnvVar     string `mapstructure:"env_var"`
}

// LLMConfig configures the remote provider used by dedup judge, consolidate
// merge, and structured extraction.
type LLMConfig struct {
	Provider  string `mapstructure:"provider"` // "none" or "anthropic"
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	EnvVar    string `mapstructure:"env_var"`
}

// RankingConfig overrides the default fusion weights. All seven must sum to
// 1.0; Validate rejects a config that doesn't.
type RankingConfig struct {
	Similarity     float64 `mapstructure:"similarity"`
	Keyword        float64 `mapstructure:"keyword"`
	Recency        float64 `mapstructure:"recency"`
	Importance     float64 `mapstructure:"importance"`
	AccessFreq     float64 `mapstructure:"access_freq"`
	GraphProximity float64 `mapstructure:"graph_proximity"`
	Trust          float64 `mapstructure:"trust"`
}

// DedupConfig configures the dedup decision gate.
type DedupConfig struct {
	SkipThreshold   float64 `mapstructure:"skip_threshold"`
	UpdateThreshold float64 `mapstructure:"update_threshold"`
	Candidates      int     `mapstructure:"candidates"`
}

// ConsolidateConfig configures scheduled/on-demand consolidation.
type ConsolidateConfig struct {
	Auto                bool    `mapstructure:"auto"`
	Interval            string  `mapstructure:"interval"`
	MinClusterSize      int     `mapstructure:"min_cluster_size"`
	MinAgeDays          int     `mapstructure:"min_age_days"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// CaptureConfig configures hook-driven ingestion.
type CaptureConfig struct {
	ReviewMode bool `mapstructure:"review_mode"`
}

// GraphConfig configures auto-relate and chain traversal.
type GraphConfig struct {
	AutoRelateThreshold float64 `mapstructure:"auto_relate_threshold"`
	ChainDepthDefault   int     `mapstructure:"chain_depth_default"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AutoPort bool   `mapstructure:"auto_port"`
	Port     int    `mapstructure:"port"`
	Host     string `mapstructure:"host"`
	CORS     bool   `mapstructure:"cors"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// RateLimitConfig throttles the RPC tool surface: a global token bucket plus
// optional per-tool overrides.
type RateLimitConfig struct {
	Enabled bool                 `mapstructure:"enabled"`
	Global  RateLimitBucket      `mapstructure:"global"`
	Tools   []ToolLimitConfig    `mapstructure:"tools"`
}

// RateLimitBucket is a token-bucket rate (refill rate + burst capacity).
type RateLimitBucket struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// ToolLimitConfig overrides the global bucket for one named tool.
type ToolLimitConfig struct {
	Name              string  `mapstructure:"name"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// DefaultConfig returns configuration with the spec's default values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".agentmem")

	return &Config{
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    filepath.Join(configDir, "memory.db"),
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Model:      "hash-128",
			Dimensions: 128,
		},
		LLM: LLMConfig{
			Provider:  "none",
			Model:     "claude-haiku-4-5",
			MaxTokens: 1024,
		},
		Ranking: RankingConfig{
			Similarity:     0.25,
			Keyword:        0.15,
			Recency:        0.15,
			Importance:     0.15,
			AccessFreq:     0.10,
			GraphProximity: 0.05,
			Trust:          0.15,
		},
		Dedup: DedupConfig{
			SkipThreshold:   0.95,
			UpdateThreshold: 0.85,
			Candidates:      10,
		},
		Consolidate: ConsolidateConfig{
			Auto:                false,
			Interval:            "24h",
			MinClusterSize:      3,
			MinAgeDays:          7,
			SimilarityThreshold: 0.80,
		},
		Capture: CaptureConfig{
			ReviewMode: false,
		},
		Graph: GraphConfig{
			AutoRelateThreshold: 0.80,
			ChainDepthDefault:   2,
		},
		RestAPI: RestAPIConfig{
			Enabled:  false,
			AutoPort: true,
			Port:     7420,
			Host:     "localhost",
			CORS:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Global:  RateLimitBucket{RequestsPerSecond: 50, BurstSize: 100},
			Tools: []ToolLimitConfig{
				{Name: "save_memory", RequestsPerSecond: 20, BurstSize: 40},
				{Name: "search", RequestsPerSecond: 30, BurstSize: 60},
				{Name: "get_context", RequestsPerSecond: 20, BurstSize: 40},
				{Name: "consolidate", RequestsPerSecond: 0.2, BurstSize: 2},
				{Name: "reembed", RequestsPerSecond: 0.2, BurstSize: 2},
			},
		},
	}
}

// Load resolves configuration by merging, in order, the global config
// (~/.agentmem/config.yaml), the project config (./.agentmem/config.yaml),
// and the local override (./agentmem.local.yaml). Later files win field by
// field over earlier ones. Missing files are not an error; defaults fill
// whatever no file sets.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	homeDir, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(homeDir, ".agentmem", "config.yaml"),
		filepath.Join(".agentmem", "config.yaml"),
		"agentmem.local.yaml",
	}

	read := false
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		v.SetConfigFile(p)
		var err error
		if !read {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}
		if err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", p, err)
		}
		read = true
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in Viper.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)

	v.SetDefault("ranking.similarity", d.Ranking.Similarity)
	v.SetDefault("ranking.keyword", d.Ranking.Keyword)
	v.SetDefault("ranking.recency", d.Ranking.Recency)
	v.SetDefault("ranking.importance", d.Ranking.Importance)
	v.SetDefault("ranking.access_freq", d.Ranking.AccessFreq)
	v.SetDefault("ranking.graph_proximity", d.Ranking.GraphProximity)
	v.SetDefault("ranking.trust", d.Ranking.Trust)

	v.SetDefault("dedup.skip_threshold", d.Dedup.SkipThreshold)
	v.SetDefault("dedup.update_threshold", d.Dedup.UpdateThreshold)
	v.SetDefault("dedup.candidates", d.Dedup.Candidates)

	v.SetDefault("consolidate.auto", d.Consolidate.Auto)
	v.SetDefault("consolidate.interval", d.Consolidate.Interval)
	v.SetDefault("consolidate.min_cluster_size", d.Consolidate.MinClusterSize)
	v.SetDefault("consolidate.min_age_days", d.Consolidate.MinAgeDays)
	v.SetDefault("consolidate.similarity_threshold", d.Consolidate.SimilarityThreshold)

	v.SetDefault("capture.review_mode", d.Capture.ReviewMode)

	v.SetDefault("graph.auto_relate_threshold", d.Graph.AutoRelateThreshold)
	v.SetDefault("graph.chain_depth_default", d.Graph.ChainDepthDefault)

	v.SetDefault("rest_api.enabled", d.RestAPI.Enabled)
	v.SetDefault("rest_api.auto_port", d.RestAPI.AutoPort)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.cors", d.RestAPI.CORS)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.global.requests_per_second", d.RateLimit.Global.RequestsPerSecond)
	v.SetDefault("rate_limit.global.burst_size", d.RateLimit.Global.BurstSize)
	v.SetDefault("rate_limit.tools", d.RateLimit.Tools)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.Backend != "sqlite" && c.Storage.Backend != "remote" {
		return fmt.Errorf("storage.backend must be 'sqlite' or 'remote'")
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the sqlite backend")
	}

	if c.Embedding.Provider != "hash" && c.Embedding.Provider != "remote" {
		return fmt.Errorf("embedding.provider must be 'hash' or 'remote'")
	}
	if c.Embedding.Provider == "remote" && c.Embedding.EnvVar == "" {
		return fmt.Errorf("embedding.env_var is required when embedding.provider is 'remote'")
	}

	if c.LLM.Provider != "none" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("llm.provider must be 'none' or 'anthropic'")
	}

	sum := c.Ranking.Similarity + c.Ranking.Keyword + c.Ranking.Recency +
		c.Ranking.Importance + c.Ranking.AccessFreq + c.Ranking.GraphProximity + c.Ranking.Trust
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %f", sum)
	}

	if c.Dedup.SkipThreshold < c.Dedup.UpdateThreshold {
		return fmt.Errorf("dedup.skip_threshold must be >= dedup.update_threshold")
	}
	if c.Dedup.Candidates < 1 {
		return fmt.Errorf("dedup.candidates must be >= 1")
	}

	if c.Consolidate.MinClusterSize < 2 {
		return fmt.Errorf("consolidate.min_cluster_size must be >= 2")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureStorageDir creates the directory holding the sqlite file if needed.
func (c *Config) EnsureStorageDir() error {
	if c.Storage.Backend != "sqlite" || c.Storage.Path == "" {
		return nil
	}
	dir := filepath.Dir(c.Storage.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

// ConfigDir returns the user-level configuration directory.
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".agentmem")
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigDir(), "memory.db")
}

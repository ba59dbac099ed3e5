package ratelimit

// Config holds rate limiting configuration
type Config struct {
	Enabled bool        `mapstructure:"enabled"`
	Global  LimitConfig `mapstructure:"global"`
	Tools   []ToolLimit `mapstructure:"tools"`
}

// LimitConfig defines rate limit parameters
type LimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// ToolLimit defines per-tool rate limiting
type ToolLimit struct {
	Name              string  `mapstructure:"name"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// DefaultConfig returns the default rate limiting configuration, used as a
// nil-config fallback by NewLimiter. Real callers (internal/mcp,
// internal/api) always build an explicit *Config from
// pkg/config.RateLimitConfig, so these defaults mirror
// config.DefaultConfig()'s own rate_limit.tools entries rather than an
// unrelated tool set.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Tools: []ToolLimit{
			{Name: "save_memory", RequestsPerSecond: 20, BurstSize: 40},
			{Name: "search", RequestsPerSecond: 30, BurstSize: 60},
			{Name: "get_context", RequestsPerSecond: 20, BurstSize: 40},
			{Name: "consolidate", RequestsPerSecond: 0.2, BurstSize: 2},
			{Name: "reembed", RequestsPerSecond: 0.2, BurstSize: 2},
		},
	}
}

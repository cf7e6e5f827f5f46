package config

import "github.com/bobmcallan/persona-mcp/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            4251,
			Host:            "localhost",
			Name:            "persona-mcp",
			ShutdownTimeout: "10s",
		},
		API: APIConfig{
			BaseURL:       "https://withpersona.com/api/v1",
			Timeout:       "30s",
			KeyInflection: "kebab",
			Envelope:      "jsonapi",
			UserAgent:     "persona-mcp",
		},
		Tools: ToolsConfig{
			ResourceScheme: "persona",
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  "500ms",
			MaxDelay:   "10s",
			Multiplier: 2.0,
			Jitter:     true,
		},
		Cache: CacheConfig{
			Enabled:       true,
			TTL:           "5m",
			MaxEntries:    1000,
			SweepInterval: "1m",
		},
		Logging: common.LoggingConfig{
			Level:   "info",
			Outputs: []string{"console"},
		},
	}
}

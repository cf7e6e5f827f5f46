package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/persona-mcp/internal/common"
	"github.com/bobmcallan/persona-mcp/internal/inflect"
	"github.com/bobmcallan/persona-mcp/internal/request"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig         `toml:"server"`
	API       APIConfig            `toml:"api"`
	Spec      SpecConfig           `toml:"spec"`
	Tools     ToolsConfig          `toml:"tools"`
	Retry     RetryConfig          `toml:"retry"`
	RateLimit RateLimitConfig      `toml:"rate_limit"`
	Cache     CacheConfig          `toml:"cache"`
	Logging   common.LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int    `toml:"port"`
	Host            string `toml:"host"`
	Name            string `toml:"name"`
	AuthToken       string `toml:"auth_token"` // optional bearer token required on /mcp
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// APIConfig describes the remote API every tool call is sent to.
type APIConfig struct {
	BaseURL       string            `toml:"base_url"`
	APIKey        string            `toml:"api_key"`
	Version       string            `toml:"version"` // sent as Persona-Version when set
	UserAgent     string            `toml:"user_agent"`
	Timeout       string            `toml:"timeout"`
	Headers       map[string]string `toml:"headers"`
	KeyInflection string            `toml:"key_inflection"` // kebab, snake or camel
	Envelope      string            `toml:"envelope"`       // jsonapi or none
}

// SpecConfig locates the API description.
type SpecConfig struct {
	Location string   `toml:"location"`
	Tags     []string `toml:"tags"`
}

// ToolsConfig controls tool and resource synthesis.
type ToolsConfig struct {
	IncludeOptionalQuery bool   `toml:"include_optional_query"`
	ResourceScheme       string `toml:"resource_scheme"`
}

// RetryConfig bounds retries of one invocation.
type RetryConfig struct {
	MaxRetries int     `toml:"max_retries"`
	BaseDelay  string  `toml:"base_delay"`
	MaxDelay   string  `toml:"max_delay"`
	Multiplier float64 `toml:"multiplier"`
	Jitter     bool    `toml:"jitter"`
}

// RateLimitConfig is the client-side token bucket. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	Enabled       bool   `toml:"enabled"`
	TTL           string `toml:"ttl"`
	MaxEntries    int    `toml:"max_entries"`
	SweepInterval string `toml:"sweep_interval"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> .env -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> .env -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(config)

	return config, nil
}

// LoadDotEnv exports the variables of an env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies PERSONA_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("PERSONA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PERSONA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if token := os.Getenv("PERSONA_SERVER_AUTH_TOKEN"); token != "" {
		config.Server.AuthToken = token
	}
	if key := os.Getenv("PERSONA_API_KEY"); key != "" {
		config.API.APIKey = key
	}
	if base := os.Getenv("PERSONA_API_BASE_URL"); base != "" {
		config.API.BaseURL = base
	}
	if version := os.Getenv("PERSONA_API_VERSION"); version != "" {
		config.API.Version = version
	}
	if spec := os.Getenv("PERSONA_SPEC"); spec != "" {
		config.Spec.Location = spec
	}
	if tags := os.Getenv("PERSONA_SPEC_TAGS"); tags != "" {
		config.Spec.Tags = splitList(tags)
	}
	if retries := os.Getenv("PERSONA_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Retry.MaxRetries = n
		}
	}
	if enabled := os.Getenv("PERSONA_CACHE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Cache.Enabled = b
		}
	}
	if level := os.Getenv("PERSONA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host, spec string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if spec != "" {
		config.Spec.Location = spec
	}
}

// Validate reports the first setting that prevents start-up.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Spec.Location) == "" {
		return fmt.Errorf("spec.location is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	switch inflect.Case(strings.ToLower(c.API.KeyInflection)) {
	case inflect.Kebab, inflect.Snake, inflect.Camel, "":
	default:
		return fmt.Errorf("api.key_inflection %q must be kebab, snake or camel", c.API.KeyInflection)
	}
	switch request.Mode(strings.ToLower(c.API.Envelope)) {
	case request.ModeJSONAPI, request.ModeNone, "":
	default:
		return fmt.Errorf("api.envelope %q must be jsonapi or none", c.API.Envelope)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	return nil
}

// Converter returns the caller/wire name converter for the remote API.
func (c *Config) Converter() inflect.Converter {
	return inflect.Converter{Case: inflect.ParseCase(c.API.KeyInflection)}
}

// EnvelopeMode returns the request body wrapping mode.
func (c *Config) EnvelopeMode() request.Mode {
	return request.Mode(strings.ToLower(c.API.Envelope))
}

// RequestHeaders returns the static headers sent with every API request.
func (c *Config) RequestHeaders() map[string]string {
	headers := make(map[string]string, len(c.API.Headers)+1)
	if c.API.Version != "" {
		headers["Persona-Version"] = c.API.Version
	}
	if inf := strings.ToLower(c.API.KeyInflection); inf != "" {
		headers["Key-Inflection"] = inf
	}
	for k, v := range c.API.Headers {
		headers[k] = v
	}
	return headers
}

// GetAPITimeout returns the per-invocation timeout.
func (c *APIConfig) GetAPITimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetBaseDelay returns the first retry delay.
func (c *RetryConfig) GetBaseDelay() time.Duration {
	return parseDuration(c.BaseDelay, 500*time.Millisecond)
}

// GetMaxDelay returns the retry delay cap.
func (c *RetryConfig) GetMaxDelay() time.Duration {
	return parseDuration(c.MaxDelay, 10*time.Second)
}

// GetTTL returns the default cache entry lifetime.
func (c *CacheConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, 5*time.Minute)
}

// GetSweepInterval returns how often expired entries are swept.
func (c *CacheConfig) GetSweepInterval() time.Duration {
	return parseDuration(c.SweepInterval, time.Minute)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *ServerConfig) GetShutdownTimeout() time.Duration {
	return parseDuration(c.ShutdownTimeout, 10*time.Second)
}

// Address returns host:port for the HTTP listener.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// parseDuration parses s, returning fallback when s is empty or invalid.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

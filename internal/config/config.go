package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/nicheradar/internal/data/cache"
	"github.com/sawpanic/nicheradar/internal/infrastructure/db"
	httpapi "github.com/sawpanic/nicheradar/internal/interfaces/http"
	"github.com/sawpanic/nicheradar/internal/net/budget"
	"github.com/sawpanic/nicheradar/internal/net/circuit"
	"github.com/sawpanic/nicheradar/internal/providers/googletrends"
)

// Source names accepted in SourceConfig.Name
const (
	SourceGoogleTrends = "googletrends"
	SourceFixture      = "fixture"
)

// Config is the complete nicheradar configuration
type Config struct {
	LogLevel     string               `yaml:"log_level"`
	Source       SourceConfig         `yaml:"source"`
	GoogleTrends googletrends.Config  `yaml:"google_trends"`
	Retry        RetryConfig          `yaml:"retry"`
	Circuit      circuit.Config       `yaml:"circuit"`
	RateLimit    RateLimitConfig      `yaml:"rate_limit"`
	Budget       budget.Config        `yaml:"budget"`
	Cache        CacheConfig          `yaml:"cache"`
	Database     db.Config            `yaml:"database"`
	HTTP         httpapi.ServerConfig `yaml:"http"`
}

// SourceConfig selects the trend data source
type SourceConfig struct {
	Name    string `yaml:"name"`    // googletrends or fixture
	Fixture string `yaml:"fixture"` // fixture document path
}

// RetryConfig bounds the fetch-and-derive attempts
type RetryConfig struct {
	Attempts int `yaml:"attempts"`
}

// RateLimitConfig is the per-source token bucket
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"` // 0 disables limiting
	Burst int     `yaml:"burst"`
}

// CacheConfig controls the measured report cache
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	TTL          time.Duration `yaml:"ttl"`
	cache.Config `yaml:",inline"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		Source:       SourceConfig{Name: SourceGoogleTrends},
		GoogleTrends: googletrends.DefaultConfig(),
		Retry:        RetryConfig{Attempts: 3},
		Circuit:      circuit.DefaultConfig(),
		RateLimit:    RateLimitConfig{RPS: 1, Burst: 2},
		Budget:       budget.Config{Limit: 1200, WarnThreshold: 0.8},
		Cache: CacheConfig{
			TTL:    cache.DefaultTTL,
			Config: cache.Config{Prefix: "nicheradar:"},
		},
		Database: db.DefaultConfig(),
		HTTP:     httpapi.DefaultServerConfig(),
	}
}

// Load reads a YAML file over the defaults and applies environment overrides.
// An empty path yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// A missing file is not an error and existing variables are kept.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays REDIS_ADDR, PG_DSN, NICHERADAR_SOURCE, NICHERADAR_LOG_LEVEL and HTTP_PORT
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Enabled = true
	}
	if v, ok := lookup("PG_DSN"); ok && v != "" {
		c.Database.DSN = v
		c.Database.Enabled = true
	}
	if v, ok := lookup("NICHERADAR_SOURCE"); ok && v != "" {
		c.Source.Name = strings.ToLower(v)
	}
	if v, ok := lookup("NICHERADAR_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("HTTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}
	return nil
}

// Validate ensures the configuration is valid and consistent
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	switch c.Source.Name {
	case SourceGoogleTrends:
		if c.GoogleTrends.BaseURL == "" {
			return fmt.Errorf("google_trends.base_url is required")
		}
	case SourceFixture:
		if c.Source.Fixture == "" {
			return fmt.Errorf("source.fixture is required for the fixture source")
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source.Name)
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}

	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must be non-negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1")
	}

	if c.Budget.Limit < 0 {
		return fmt.Errorf("budget.daily_limit must be non-negative")
	}

	if c.Circuit.ConsecutiveFailures < 1 {
		return fmt.Errorf("circuit.consecutive_failures must be at least 1")
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}

	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when the database is enabled")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/govalues/money"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the service and CLI.
type Config struct {
	AppAddr            string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout     time.Duration `envconfig:"APP_READ_TIMEOUT" default:"5s"`
	AppWriteTimeout    time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"10s"`
	AppShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// DatabaseURL selects the Postgres store; empty runs on the in-memory store.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	// RedisAddr enables the historical trial balance cache when set.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"1h"`

	// BookCurrency is the ISO 4217 code amounts are presented in.
	BookCurrency string `envconfig:"BOOK_CURRENCY" default:"USD"`
	// DevSeed loads the default chart of accounts on start.
	DevSeed bool `envconfig:"DEV_SEED" default:"false"`
	// RateLimitPerMinute caps write requests per client IP; 0 disables the limiter.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`

	currency money.Currency
}

// Load reads an optional .env file and then the environment. Variables that
// are already set win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	cur, err := money.ParseCurr(strings.ToUpper(strings.TrimSpace(c.BookCurrency)))
	if err != nil {
		return fmt.Errorf("config: BOOK_CURRENCY %q: %w", c.BookCurrency, err)
	}
	c.BookCurrency = cur.Code()
	c.currency = cur
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// Currency returns the book currency parsed by Validate.
func (c *Config) Currency() money.Currency { return c.currency }

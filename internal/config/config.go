package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/cartstate/pkg/config"
)

// Store kinds accepted by CART_STORE.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration for the cart state service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8080"`

	// Snapshot storage
	StorageKey       string `env:"CART_STORAGE_KEY" envDefault:"storefront:cart"`
	Store            string `env:"CART_STORE" envDefault:"redis"`
	SnapshotTTLHours int    `env:"CART_SNAPSHOT_TTL_HOURS" envDefault:"0"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresDSN string `env:"POSTGRES_DSN"`

	// Catalog / stock API
	CatalogURL          string  `env:"CATALOG_API_URL" envDefault:"http://localhost:3333"`
	HTTPClientTimeoutMS int     `env:"HTTP_CLIENT_TIMEOUT_MS" envDefault:"5000"`
	HTTPClientRetries   int     `env:"HTTP_CLIENT_MAX_RETRIES" envDefault:"2"`
	CBFailureRatio      float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests       uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`
	CBOpenTimeoutSec    int     `env:"CB_OPEN_TIMEOUT_SEC" envDefault:"15"`

	// Per-operation deadline across every downstream call; 0 disables it.
	OperationTimeoutMS int `env:"CART_OPERATION_TIMEOUT_MS" envDefault:"10000"`

	// Kafka; empty disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Notifications buffered for the UI to poll.
	NotificationBuffer int `env:"NOTIFICATION_BUFFER" envDefault:"50"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Per-client-IP request budget on the cart API; 0 disables limiting.
	RateLimitRPS   float64 `env:"CART_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"CART_RATE_LIMIT_BURST" envDefault:"40"`
	// Key clients on forwarding headers; only safe behind a proxy that sets them.
	RateLimitTrustProxy bool `env:"CART_RATE_LIMIT_TRUST_PROXY" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		errs = append(errs, errors.New("CART_STORAGE_KEY must not be empty"))
	}
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when CART_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("CART_STORE must be one of memory, redis, postgres; got %q", c.Store))
	}
	if c.SnapshotTTLHours < 0 {
		errs = append(errs, errors.New("CART_SNAPSHOT_TTL_HOURS must not be negative"))
	}
	if c.CatalogURL == "" {
		errs = append(errs, errors.New("CATALOG_API_URL is required"))
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1 {
		errs = append(errs, errors.New("CB_FAILURE_RATIO must be in (0, 1]"))
	}
	if c.OperationTimeoutMS < 0 {
		errs = append(errs, errors.New("CART_OPERATION_TIMEOUT_MS must not be negative"))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATE must be between 0.0 and 1.0"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("CART_RATE_LIMIT_RPS must not be negative"))
	}
	if c.NotificationBuffer < 1 {
		errs = append(errs, errors.New("NOTIFICATION_BUFFER must be at least 1"))
	}
	return errors.Join(errs...)
}

// SnapshotTTL is the expiry applied to stored snapshots; zero means none.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLHours) * time.Hour
}

// OperationTimeout is the deadline applied to one cart operation.
func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutMS) * time.Millisecond
}

// HTTPClientTimeout bounds one request to the catalog API.
func (c *Config) HTTPClientTimeout() time.Duration {
	return time.Duration(c.HTTPClientTimeoutMS) * time.Millisecond
}

// KafkaEnabled reports whether cart events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

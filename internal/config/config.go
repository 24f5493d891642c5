package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/good12834/shoestore/pkg/config"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the storefront client.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://127.0.0.1:3000" envSeparator:","`

	// Profile scopes the local snapshots, like a browser profile.
	Profile string `env:"STOREFRONT_PROFILE" envDefault:"default"`

	// Local storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"file"`
	StorageDir    string `env:"STORAGE_DIR"`
	SnapshotTTL   int    `env:"SNAPSHOT_TTL_HOURS" envDefault:"0"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:""`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Remote collection endpoints
	RemoteBaseURL    string        `env:"REMOTE_BASE_URL" envDefault:"http://localhost:5000/api"`
	RemoteTimeout    time.Duration `env:"REMOTE_TIMEOUT" envDefault:"30s"`
	RemoteMaxRetries int           `env:"REMOTE_MAX_RETRIES" envDefault:"0"`

	// Sync policy. A threshold of 0 disables the circuit breaker.
	CartFailureThreshold     int     `env:"CART_FAILURE_THRESHOLD" envDefault:"0"`
	WishlistFailureThreshold int     `env:"WISHLIST_FAILURE_THRESHOLD" envDefault:"3"`
	SyncRatePerSecond        float64 `env:"SYNC_RATE_PER_SECOND" envDefault:"0"`
	SyncBurst                int     `env:"SYNC_BURST" envDefault:"1"`

	// Kafka change feed; empty disables publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from the optional TOML file at path and the
// environment. Environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SnapshotTTLDuration returns the redis snapshot expiry; zero means none.
func (c *Config) SnapshotTTLDuration() time.Duration {
	return time.Duration(c.SnapshotTTL) * time.Hour
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if strings.TrimSpace(c.Profile) == "" {
		return fmt.Errorf("STOREFRONT_PROFILE must not be empty")
	}
	if strings.ContainsAny(c.Profile, `/\:`) {
		return fmt.Errorf("STOREFRONT_PROFILE must not contain path separators: %q", c.Profile)
	}
	switch c.StorageDriver {
	case DriverFile, DriverMemory, DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want file, memory, redis or postgres)", c.StorageDriver)
	}
	if c.SnapshotTTL < 0 {
		return fmt.Errorf("SNAPSHOT_TTL_HOURS must not be negative")
	}
	if c.RemoteBaseURL == "" {
		return fmt.Errorf("REMOTE_BASE_URL is required")
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive")
	}
	if c.RemoteMaxRetries < 0 {
		return fmt.Errorf("REMOTE_MAX_RETRIES must not be negative")
	}
	if c.CartFailureThreshold < 0 || c.WishlistFailureThreshold < 0 {
		return fmt.Errorf("failure thresholds must not be negative")
	}
	if c.SyncRatePerSecond < 0 {
		return fmt.Errorf("SYNC_RATE_PER_SECOND must not be negative")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
	}
	return nil
}

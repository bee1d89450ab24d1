// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Usage     UsageConfig
	Pricing   PricingConfig
	Plans     PlansConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string
	MasterKey     string
	BodySizeLimit int64
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// RateLimitConfig configures the sliding-window admission controller
type RateLimitConfig struct {
	// Store is "redis" or "memory"
	Store string
	// RedisURL is the go-redis connection URL, e.g. redis://localhost:6379/0
	RedisURL string
	// KeyPrefix namespaces window keys in the store
	KeyPrefix string
	// FailurePolicy is "closed" or "open"
	FailurePolicy string
	// TimeoutMs bounds each store round trip
	TimeoutMs int
}

// StorageConfig selects the durable backend shared by usage tracking
type StorageConfig struct {
	// Type is "sqlite", "postgresql", or "mongodb"
	Type       string
	SQLite     SQLiteConfig
	PostgreSQL PostgreSQLConfig
	MongoDB    MongoDBConfig
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// PostgreSQLConfig holds PostgreSQL settings
type PostgreSQLConfig struct {
	URL      string
	MaxConns int
}

// MongoDBConfig holds MongoDB settings
type MongoDBConfig struct {
	URL      string
	Database string
}

// UsageConfig controls usage event recording
type UsageConfig struct {
	Enabled bool
	// BufferSize is the async logger channel capacity
	BufferSize int
	// FlushInterval is in seconds
	FlushInterval int
	// RetentionDays prunes events older than this; 0 disables pruning
	RetentionDays int
}

// PricingConfig locates the model pricing catalog
type PricingConfig struct {
	CatalogPath string
}

// PlansConfig locates the account plan catalog
type PlansConfig struct {
	CatalogPath string
}

// LoggingConfig holds slog settings
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error"
	Level string
	// Format is "json" or "pretty"
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	// Optional, won't fail if not found
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			MasterKey:     getEnv("MASTER_KEY", ""),
			BodySizeLimit: int64(getEnvInt("BODY_SIZE_LIMIT", 0)),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("METRICS_ENABLED", true),
			Endpoint: getEnv("METRICS_ENDPOINT", "/metrics"),
		},
		RateLimit: RateLimitConfig{
			Store:         getEnv("RATELIMIT_STORE", "memory"),
			RedisURL:      getEnv("RATELIMIT_REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix:     getEnv("RATELIMIT_KEY_PREFIX", ""),
			FailurePolicy: getEnv("RATELIMIT_FAILURE_POLICY", "closed"),
			TimeoutMs:     getEnvInt("RATELIMIT_TIMEOUT_MS", 2000),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			SQLite: SQLiteConfig{
				Path: getEnv("STORAGE_SQLITE_PATH", ".cache/gometer.db"),
			},
			PostgreSQL: PostgreSQLConfig{
				URL:      getEnv("STORAGE_POSTGRES_URL", ""),
				MaxConns: getEnvInt("STORAGE_POSTGRES_MAX_CONNS", 10),
			},
			MongoDB: MongoDBConfig{
				URL:      getEnv("STORAGE_MONGODB_URL", ""),
				Database: getEnv("STORAGE_MONGODB_DATABASE", "gometer"),
			},
		},
		Usage: UsageConfig{
			Enabled:       getEnvBool("USAGE_ENABLED", true),
			BufferSize:    getEnvInt("USAGE_BUFFER_SIZE", 1000),
			FlushInterval: getEnvInt("USAGE_FLUSH_INTERVAL", 5),
			RetentionDays: getEnvInt("USAGE_RETENTION_DAYS", 90),
		},
		Pricing: PricingConfig{
			CatalogPath: getEnv("PRICING_CATALOG", ""),
		},
		Plans: PlansConfig{
			CatalogPath: getEnv("PLANS_CATALOG", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.RateLimit.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid RATELIMIT_STORE %q (valid: redis, memory)", c.RateLimit.Store)
	}

	switch c.RateLimit.FailurePolicy {
	case "closed", "open":
	default:
		return fmt.Errorf("invalid RATELIMIT_FAILURE_POLICY %q (valid: closed, open)", c.RateLimit.FailurePolicy)
	}

	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb":
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q (valid: sqlite, postgresql, mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "postgresql" && c.Usage.Enabled && c.Storage.PostgreSQL.URL == "" {
		return fmt.Errorf("STORAGE_POSTGRES_URL is required with STORAGE_TYPE=postgresql")
	}
	if c.Storage.Type == "mongodb" && c.Usage.Enabled && c.Storage.MongoDB.URL == "" {
		return fmt.Errorf("STORAGE_MONGODB_URL is required with STORAGE_TYPE=mongodb")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

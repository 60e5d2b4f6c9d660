// Package config loads service configuration from SENTINEL_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Token    TokenConfig
	Checker  CheckerConfig
	Audit    AuditConfig

	// Environment is "production", "staging" or "development". Plaintext
	// client secret comparison is refused in production.
	Environment string

	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis cache configuration. Redis is optional; with no
// URL configured the checker falls back to an in-process LRU cache.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// TokenConfig holds token validation configuration
type TokenConfig struct {
	// IssuerURL is the OpenID Connect issuer whose tokens are accepted.
	IssuerURL string
	// Audience, when set, must appear in the token's aud claim.
	Audience string
	// KeySetTTL bounds how long discovered issuer metadata and signing keys
	// are reused before a refresh.
	KeySetTTL time.Duration
	// RevocationCheckEnabled switches the revocation store lookup on the
	// validation path.
	RevocationCheckEnabled bool
	// RevocationRetention keeps revoked-token records past their natural
	// expiry for audit before cleanup removes them.
	RevocationRetention time.Duration
	// RevocationCacheTTL bounds the staleness of the revocation look-aside
	// cache.
	RevocationCacheTTL time.Duration
}

// CheckerConfig holds permission check service configuration
type CheckerConfig struct {
	// PermissionCacheTTL bounds the staleness window of resolved
	// permissions. Zero disables the cache.
	PermissionCacheTTL time.Duration
	// PermissionCacheSize caps the in-process LRU when Redis is absent.
	PermissionCacheSize int
}

// AuditConfig holds audit sink configuration
type AuditConfig struct {
	// FilePath, when set, mirrors check log rows to an NDJSON file in
	// addition to the database sink.
	FilePath string
	// RetentionDays bounds how long check log rows are kept.
	RetentionDays int
	// CleanupSchedule is a cron expression for the retention sweep.
	CleanupSchedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SENTINEL_HOST", "0.0.0.0"),
			Port:            getEnv("SENTINEL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SENTINEL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SENTINEL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SENTINEL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SENTINEL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("SENTINEL_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("SENTINEL_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("SENTINEL_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("SENTINEL_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("SENTINEL_REDIS_URL", ""),
			Password: getEnv("SENTINEL_REDIS_PASSWORD", ""),
			DB:       getEnvInt("SENTINEL_REDIS_DB", 0),
			PoolSize: getEnvInt("SENTINEL_REDIS_POOL_SIZE", 10),
		},
		Token: TokenConfig{
			IssuerURL:              getEnv("SENTINEL_ISSUER_URL", ""),
			Audience:               getEnv("SENTINEL_AUDIENCE", ""),
			KeySetTTL:              getEnvDuration("SENTINEL_KEYSET_TTL", 60*time.Minute),
			RevocationCheckEnabled: getEnvBool("SENTINEL_REVOCATION_CHECK", true),
			RevocationRetention:    getEnvDuration("SENTINEL_REVOCATION_RETENTION", 24*time.Hour),
			RevocationCacheTTL:     getEnvDuration("SENTINEL_REVOCATION_CACHE_TTL", time.Minute),
		},
		Checker: CheckerConfig{
			PermissionCacheTTL:  getEnvDuration("SENTINEL_PERMISSION_CACHE_TTL", 30*time.Second),
			PermissionCacheSize: getEnvInt("SENTINEL_PERMISSION_CACHE_SIZE", 10000),
		},
		Audit: AuditConfig{
			FilePath:        getEnv("SENTINEL_AUDIT_FILE", ""),
			RetentionDays:   getEnvInt("SENTINEL_AUDIT_RETENTION_DAYS", 90),
			CleanupSchedule: getEnv("SENTINEL_AUDIT_CLEANUP_SCHEDULE", "0 3 * * *"),
		},
		Environment: getEnv("SENTINEL_ENV", "development"),
		LogLevel:    getEnv("SENTINEL_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Token.IssuerURL == "" {
		return fmt.Errorf("issuer URL is required")
	}
	if c.Token.KeySetTTL <= 0 {
		return fmt.Errorf("key set TTL must be positive")
	}
	switch c.Environment {
	case "production", "staging", "development":
	default:
		return fmt.Errorf("invalid environment: %s (must be production, staging, or development)", c.Environment)
	}
	return nil
}

// IsProduction reports whether the service runs with production hardening
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

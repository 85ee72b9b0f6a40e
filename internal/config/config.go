package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN); postgres:// or a sqlite path
	DatabaseURL string

	// Redis address for the kv queue driver (host:port); empty disables it
	RedisAddr string

	// Maximum database connection pool size
	MaxDBConnections int

	// Enable debug logging
	Debug bool

	Queue       QueueConfig
	Permissions PermissionsConfig
	Validation  ValidationConfig
}

// QueueConfig tunes the queue drivers and worker loop.
type QueueConfig struct {
	// Default driver name: "database" or "redis"
	Driver string

	// Default queue name for push/work when none is given
	Default string

	// RetryAfter is the reservation lease: a popped job returns to pending
	// this long after reservation unless deleted or failed
	RetryAfter time.Duration

	// JobExpiration bounds the kv driver's per-job hash TTL
	JobExpiration time.Duration

	// Workers is the per-process worker goroutine count
	Workers int
}

// PermissionsConfig tunes the authorization resolver.
type PermissionsConfig struct {
	// CacheTTL is the upper bound on a cached authorization decision
	CacheTTL time.Duration
}

// ValidationConfig tunes the validator.
type ValidationConfig struct {
	// Cache keeps compiled descriptors across requests
	Cache bool
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", "glueful.db"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		MaxDBConnections: getEnvInt("MAX_DB_CONNECTIONS", 25),
		Debug:            getEnvBool("DEBUG", false),
		Queue: QueueConfig{
			Driver:        getEnv("QUEUE_DRIVER", "database"),
			Default:       getEnv("QUEUE_DEFAULT", "default"),
			RetryAfter:    getEnvSeconds("QUEUE_RETRY_AFTER", 90),
			JobExpiration: getEnvSeconds("QUEUE_JOB_EXPIRATION", 3600),
			Workers:       getEnvInt("QUEUE_WORKERS", 4),
		},
		Permissions: PermissionsConfig{
			CacheTTL: getEnvSeconds("PERMISSION_CACHE_TTL", 30),
		},
		Validation: ValidationConfig{
			Cache: getEnvBool("VALIDATION_CACHE", true),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.Queue.Driver {
	case "database":
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when QUEUE_DRIVER=redis")
		}
	default:
		return nil, fmt.Errorf("unknown QUEUE_DRIVER %q (want database or redis)", cfg.Queue.Driver)
	}

	if cfg.Queue.RetryAfter <= 0 {
		return nil, fmt.Errorf("QUEUE_RETRY_AFTER must be positive")
	}
	if cfg.Queue.JobExpiration <= 0 {
		return nil, fmt.Errorf("QUEUE_JOB_EXPIRATION must be positive")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvSeconds retrieves a seconds-valued environment variable as a duration
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// Package config - service configuration loading
package config

import (
	"os"
	"strconv"
	"time"
)

// Config intake service runtime configuration
type Config struct {
	// ListenAddress HTTP listen address
	ListenAddress string
	// DBFile SQLite database file path
	DBFile string
	// EncryptionSecret the provisioned encryption secret. Required; the
	// service refuses to start without it.
	EncryptionSecret string
	// KeyLifetime key validity window before scheduled rotation
	KeyLifetime time.Duration
	// SubmissionRetention how long stored submissions are kept
	SubmissionRetention time.Duration
	// AllowedOrigin the single origin accepted for cross-origin requests
	AllowedOrigin string
	// RedisAddress optional shared Redis for rate limit counters. When empty,
	// counters are process-local.
	RedisAddress string
	// LogLevel apex log level name
	LogLevel string
}

// Load read configuration from the environment
func Load() *Config {
	return &Config{
		ListenAddress:       getEnv("LISTEN_ADDRESS", ":8080"),
		DBFile:              getEnv("DB_FILE", "intake.db"),
		EncryptionSecret:    os.Getenv("ENCRYPTION_SECRET"),
		KeyLifetime:         getEnvDuration("KEY_LIFETIME_DAYS", 90) * 24 * time.Hour,
		SubmissionRetention: getEnvDuration("SUBMISSION_RETENTION_HOURS", 72) * time.Hour,
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", ""),
		RedisAddress:        os.Getenv("REDIS_ADDRESS"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal int64) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil && parsed > 0 {
			return time.Duration(parsed)
		}
	}
	return time.Duration(defaultVal)
}

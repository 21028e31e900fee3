package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the API service
type Config struct {
	// Server
	Port        string
	Environment string

	// Model endpoint
	LMStudioURL   string
	LMStudioModel string

	// Optional infrastructure
	DatabaseURL  string
	RedisURL     string
	NATSURL      string
	OTLPEndpoint string

	// Orchestration budgets
	GlobalTimeout  time.Duration
	PerTypeTimeout time.Duration
	HealthCooldown time.Duration

	// Retry policy
	RetryMaxAttempts int
	RetryBaseBackoff time.Duration

	// Cache
	CacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("GO_ENV", "development"),
		LMStudioURL:      getEnv("LMSTUDIO_URL", "http://localhost:1234"),
		LMStudioModel:    getEnv("LMSTUDIO_MODEL", "local-model"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		NATSURL:          getEnv("NATS_URL", ""),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		GlobalTimeout:    getEnvDuration("GENERATION_TIMEOUT", 120*time.Second),
		PerTypeTimeout:   getEnvDuration("DOCUMENT_TIMEOUT", 90*time.Second),
		HealthCooldown:   getEnvDuration("HEALTH_COOLDOWN", 30*time.Second),
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseBackoff: getEnvDuration("RETRY_BASE_BACKOFF", 500*time.Millisecond),
		CacheTTL:         getEnvDuration("CACHE_TTL", time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port int
	Env  string

	// Cache
	CacheDir string

	// Optional shared cache database (empty = file-backed store)
	DatabaseURL string

	// Optional NATS for run lifecycle events (empty = disabled)
	NATSURL string

	// Execution
	Workers   int // 0 = derive from resource monitor
	BatchSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Env:         getEnv("ENV", "development"),
		CacheDir:    getEnv("ULTRA_CACHE_DIR", defaultCacheDir()),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),
		Workers:     getEnvInt("ULTRA_WORKERS", 0),
		BatchSize:   getEnvInt("ULTRA_BATCH_SIZE", 20),
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	return nil
}

func defaultCacheDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ultra", "cache")
	}
	return ".ultra-cache"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

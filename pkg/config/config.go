package config

import (
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Config manages service configuration
type Config struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates a new configuration manager
func New() *Config {
	return &Config{
		values: make(map[string]string),
	}
}

// envBindings maps configuration keys to their environment variables and
// defaults. The defaults mirror the docker-compose development stack.
var envBindings = []struct {
	key      string
	env      string
	fallback string
}{
	{"server.port", "SOVERA_PORT", "8000"},
	{"postgres.host", "POSTGRES_SERVER", "localhost"},
	{"postgres.port", "POSTGRES_PORT", "5432"},
	{"postgres.user", "POSTGRES_USER", "postgres"},
	{"postgres.password", "POSTGRES_PASSWORD", ""},
	{"postgres.database", "POSTGRES_DB", "sovera"},
	{"minio.endpoint", "MINIO_ENDPOINT", "localhost:9000"},
	{"minio.access_key", "MINIO_ACCESS_KEY", ""},
	{"minio.secret_key", "MINIO_SECRET_KEY", ""},
	{"redis.addr", "REDIS_ADDR", "localhost:6379"},
	{"auth.secret", "SECRET_KEY", ""},
}

// LoadFromEnv populates the configuration from the process environment,
// reading a .env file first if one is present.
func LoadFromEnv() *Config {
	// Missing .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	cfg := New()
	values := make(map[string]string, len(envBindings))
	for _, b := range envBindings {
		v := os.Getenv(b.env)
		if v == "" {
			v = b.fallback
		}
		values[b.key] = v
	}
	cfg.Update(values)
	return cfg
}

// Get retrieves a configuration value
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetAll returns a copy of all configuration values
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copy := make(map[string]string)
	for k, v := range c.values {
		copy[k] = v
	}
	return copy
}

// Update updates configuration values
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// Redacted returns all configuration values with secrets masked, for
// startup logging.
func (c *Config) Redacted() map[string]string {
	values := c.GetAll()
	for k, v := range values {
		if v == "" {
			continue
		}
		if strings.Contains(k, "secret") || strings.Contains(k, "password") || strings.Contains(k, "key") {
			values[k] = "***"
		}
	}
	return values
}

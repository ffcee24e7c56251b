package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults apply when the environment is empty", func(t *testing.T) {
		t.Setenv("SOVERA_PORT", "")
		t.Setenv("POSTGRES_DB", "")
		t.Setenv("REDIS_ADDR", "")

		cfg := LoadFromEnv()

		assert.Equal(t, "8000", cfg.Get("server.port"))
		assert.Equal(t, "sovera", cfg.Get("postgres.database"))
		assert.Equal(t, "localhost:6379", cfg.Get("redis.addr"))
	})

	t.Run("environment wins over defaults", func(t *testing.T) {
		t.Setenv("SOVERA_PORT", "9001")
		t.Setenv("POSTGRES_SERVER", "db.internal")

		cfg := LoadFromEnv()
		assert.Equal(t, "9001", cfg.Get("server.port"))
		assert.Equal(t, "db.internal", cfg.Get("postgres.host"))
	})
}

func TestUpdateAndGetAll(t *testing.T) {
	cfg := New()
	cfg.Update(map[string]string{"a": "1", "b": "2"})
	cfg.Update(map[string]string{"b": "3"})

	assert.Equal(t, "1", cfg.Get("a"))
	assert.Equal(t, "3", cfg.Get("b"))

	all := cfg.GetAll()
	require.Equal(t, map[string]string{"a": "1", "b": "3"}, all)

	// GetAll hands out a copy, not the live map.
	all["a"] = "mutated"
	assert.Equal(t, "1", cfg.Get("a"))
}

func TestRedacted(t *testing.T) {
	cfg := New()
	cfg.Update(map[string]string{
		"postgres.host":     "localhost",
		"postgres.password": "hunter2",
		"minio.secret_key":  "s3cret",
		"auth.secret":       "jwt-secret",
		"minio.access_key":  "",
	})

	redacted := cfg.Redacted()
	assert.Equal(t, "localhost", redacted["postgres.host"])
	assert.Equal(t, "***", redacted["postgres.password"])
	assert.Equal(t, "***", redacted["minio.secret_key"])
	assert.Equal(t, "***", redacted["auth.secret"])
	assert.Equal(t, "", redacted["minio.access_key"])
}

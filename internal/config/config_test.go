package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "memory", cfg.SnapshotBackend)
	assert.Equal(t, 7*24*time.Hour, cfg.SnapshotTTL)
	assert.Equal(t, 100*1024, cfg.LabelPreviewMaxBytes)
	assert.Equal(t, 1024*1024, cfg.AudioBlobMaxBytes)
	assert.Equal(t, "/models/candle.glb", cfg.ModelURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.False(t, cfg.UseRedis())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CANDLED_ADDR", ":9999")
	t.Setenv("LOG_FORMAT", "ZEROLOG")
	t.Setenv("SNAPSHOT_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LABEL_PREVIEW_MAX_BYTES", "2048")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "zerolog", cfg.LogFormat)
	assert.Equal(t, "redis", cfg.SnapshotBackend)
	assert.Equal(t, 2048, cfg.LabelPreviewMaxBytes)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
	assert.True(t, cfg.UseRedis())
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("CANDLED_ADDR=:7000\nMODEL_URL=/models/jar.glb\n"), 0o600))

	t.Setenv("CANDLED_ADDR", ":7001")
	t.Setenv("MODEL_URL", "")
	os.Unsetenv("MODEL_URL")
	t.Cleanup(func() { os.Unsetenv("MODEL_URL") })

	cfg, err := Load(file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.Addr)
	assert.Equal(t, "/models/jar.glb", cfg.ModelURL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"backend", func(c *Config) { c.SnapshotBackend = "sqlite" }},
		{"redis without url", func(c *Config) { c.SnapshotBackend = "redis"; c.RedisURL = "" }},
		{"file without dir", func(c *Config) { c.SnapshotBackend = "file"; c.SnapshotDir = "" }},
		{"label limit", func(c *Config) { c.LabelPreviewMaxBytes = 0 }},
		{"rate", func(c *Config) { c.RateLimitRPS = 0 }},
		{"idle", func(c *Config) { c.SessionIdleTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("invalid env", func(t *testing.T) {
		t.Setenv("SNAPSHOT_BACKEND", "tape")
		_, err := Load()
		assert.Error(t, err)
	})
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dropforge/dropforge/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Storage.OpTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.Auth.PerMinute)
	assert.Equal(t, 20, cfg.RateLimit.Auth.PerHour)
	assert.Equal(t, 60, cfg.RateLimit.API.PerMinute)
	assert.Equal(t, 1000, cfg.RateLimit.API.PerHour)
	assert.Equal(t, 10, cfg.RateLimit.Upload.PerMinute)
	assert.Equal(t, 100, cfg.RateLimit.Upload.PerHour)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.BlockDuration)
	assert.Equal(t, time.Minute, cfg.RateLimit.WindowGrace)

	assert.Equal(t, 1000, cfg.Security.RecentCap)
	assert.Equal(t, 500, cfg.Security.PerIPCap)
	assert.Equal(t, 5, cfg.Security.BruteForceThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Security.BruteForceWindow)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
environment: production
server:
  port: 9090
storage:
  driver: memory
rate_limit:
  auth:
    per_minute: 3
  block_duration: 10m
`)
	assert.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.LoadConfig(path)
	assert.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.RateLimit.Auth.PerMinute)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.BlockDuration)

	// Unset keys keep their defaults.
	assert.Equal(t, 20, cfg.RateLimit.Auth.PerHour)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DROPFORGE_SERVER_PORT", "9999")
	t.Setenv("DROPFORGE_STORAGE_DRIVER", "memory")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: etcd\n"), 0o600))

	_, err := config.LoadConfig(path)
	assert.Error(t, err)

	assert.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))
	_, err = config.LoadConfig(path)
	assert.Error(t, err)
}

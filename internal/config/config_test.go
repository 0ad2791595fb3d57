package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilvermadev/mapx/internal/errors"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
)

// chdir isolates Load from any .env in the package directory.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := chdir(t)
	t.Setenv("HOME", dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3001", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Session.ExpiryBuffer)
	assert.Equal(t, 5*time.Second, cfg.Session.LogoutTimeout)
	assert.Equal(t, tokenstore.BackendFile, cfg.Store.Backend)
	assert.Equal(t, tokenstore.DefaultRedisPrefix, cfg.Store.RedisPrefix)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.example.com
  timeout: 10s
session:
  expiry_buffer: 5m
store:
  backend: bolt
  path: ~/sessions/mapx.db
log:
  level: debug
`), 0600))
	t.Setenv("MAPX_LOG_FORMAT", "json")
	t.Setenv("MAPX_SESSION_LOGOUT_TIMEOUT", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Session.ExpiryBuffer)
	assert.Equal(t, time.Second, cfg.Session.LogoutTimeout)
	assert.Equal(t, tokenstore.BackendBolt, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(home, "sessions", "mapx.db"), cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	t.Setenv("HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MAPX_STORE_BACKEND=memory\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("MAPX_STORE_BACKEND") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, tokenstore.BackendMemory, cfg.Store.Backend)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := chdir(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			API:     APIConfig{BaseURL: "https://api.example.com"},
			Session: SessionConfig{ExpiryBuffer: time.Minute, LogoutTimeout: time.Second},
			Store:   StoreConfig{Backend: tokenstore.BackendFile},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }, "api.base_url"},
		{"non-http base url", func(c *Config) { c.API.BaseURL = "ftp://x" }, "api.base_url"},
		{"negative buffer", func(c *Config) { c.Session.ExpiryBuffer = -time.Second }, "session.expiry_buffer"},
		{"zero logout timeout", func(c *Config) { c.Session.LogoutTimeout = 0 }, "session.logout_timeout"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "telemetry.sample_rate"},
	}

	c := valid()
	require.NoError(t, c.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestRedactedAndTokenStore(t *testing.T) {
	c := Config{Store: StoreConfig{Backend: "redis", RedisAddr: "localhost:6379", RedisPassword: "hunter2", RedisDB: 2}}

	assert.Equal(t, "********", c.Redacted().Store.RedisPassword)
	assert.Equal(t, "hunter2", c.Store.RedisPassword)

	ts := c.Store.TokenStore()
	assert.Equal(t, "redis", ts.Backend)
	assert.Equal(t, 2, ts.RedisDB)
	assert.Equal(t, "hunter2", ts.RedisPassword)
}

// Package config handles application configuration using Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	mapxerrors "github.com/sahilvermadev/mapx/internal/errors"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
)

// EnvPrefix prefixes every environment override, e.g. MAPX_API_BASE_URL.
const EnvPrefix = "MAPX"

// Config holds the application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SessionConfig tunes token lifecycle decisions.
type SessionConfig struct {
	ExpiryBuffer  time.Duration `mapstructure:"expiry_buffer" yaml:"expiry_buffer"`
	LogoutTimeout time.Duration `mapstructure:"logout_timeout" yaml:"logout_timeout"`
}

// StoreConfig selects where tokens are persisted.
type StoreConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	Path          string `mapstructure:"path" yaml:"path,omitempty"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password,omitempty"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds the metrics listener address.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// TokenStore converts the store section for tokenstore.Open.
func (s StoreConfig) TokenStore() tokenstore.Config {
	return tokenstore.Config{
		Backend:       s.Backend,
		Path:          s.Path,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		RedisPrefix:   s.RedisPrefix,
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Store.RedisPassword != "" {
		c.Store.RedisPassword = "********"
	}
	return c
}

// DefaultDir is the directory holding config.yaml and the session files.
func DefaultDir() string {
	return tokenstore.DefaultDir()
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads configuration from defaults, an optional .env file, the
// config file and MAPX_ environment variables, later sources winning.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is OK, we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, mapxerrors.Wrap(mapxerrors.ErrCodeConfigInvalid, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, mapxerrors.Wrap(mapxerrors.ErrCodeConfigInvalid, "failed to decode configuration", err)
	}

	// Expand home directory in store path
	cfg.Store.Path = expandHome(cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return mapxerrors.NewConfigInvalidError("api.base_url", "must not be empty")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return mapxerrors.NewConfigInvalidError("api.base_url", fmt.Sprintf("%q is not an http(s) URL", c.API.BaseURL))
	}
	if c.Session.ExpiryBuffer < 0 {
		return mapxerrors.NewConfigInvalidError("session.expiry_buffer", "must not be negative")
	}
	if c.Session.LogoutTimeout <= 0 {
		return mapxerrors.NewConfigInvalidError("session.logout_timeout", "must be positive")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return mapxerrors.NewConfigInvalidError("telemetry.sample_rate", "must be between 0 and 1")
	}
	switch c.Store.Backend {
	case tokenstore.BackendMemory, tokenstore.BackendFile, tokenstore.BackendBolt, tokenstore.BackendRedis:
	default:
		return mapxerrors.NewConfigInvalidError("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}
	return nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3001")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("session.expiry_buffer", 2*time.Minute)
	v.SetDefault("session.logout_timeout", 5*time.Second)
	v.SetDefault("store.backend", tokenstore.BackendFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", tokenstore.DefaultRedisPrefix)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// loadDotEnv populates unset environment variables from path, if present.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return mapxerrors.Wrap(mapxerrors.ErrCodeConfigInvalid, "failed to load "+path, err)
	}
	return nil
}

func expandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"

	"github.com/sahilvermadev/mapx/internal/errors"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DefaultDir is where file-based backends live when no path is given.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mapx"
	}
	return filepath.Join(home, ".mapx")
}

// DefaultPath returns the default location for a file-based backend.
func DefaultPath(backend string) string {
	if backend == BackendBolt {
		return filepath.Join(DefaultDir(), "session.db")
	}
	return filepath.Join(DefaultDir(), "session.json")
}

// Open builds the Store named by cfg.Backend. The redis backend is pinged
// before it is returned.
func Open(ctx context.Context, cfg Config) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath(cfg.Backend)
	}

	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile, "":
		return NewFile(path), nil
	case BackendBolt:
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, errors.NewStoreWriteError("bolt", err)
		}
		return OpenBolt(path, &bbolt.Options{Timeout: time.Second})
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.NewConfigInvalidError("store.redis_addr", "required for the redis backend")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, errors.NewStoreReadError("redis", err)
		}
		return NewRedis(client, cfg.RedisPrefix), nil
	default:
		return nil, errors.NewConfigInvalidError("store.backend", "unknown backend "+cfg.Backend)
	}
}

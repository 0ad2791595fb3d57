package tokenstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/sahilvermadev/mapx/internal/errors"
)

// DefaultRedisPrefix namespaces the session keys.
const DefaultRedisPrefix = "mapx:session:"

// Redis keeps the pair in Redis so several processes share one session.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis returns a Store backed by client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

// Save implements Store. Both keys are written in one MULTI/EXEC.
func (r *Redis) Save(ctx context.Context, p Pair) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range p.fields() {
			if v == "" {
				pipe.Del(ctx, r.key(k))
				continue
			}
			pipe.Set(ctx, r.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return errors.NewStoreWriteError("redis", err)
	}
	return nil
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context) (Pair, error) {
	vals, err := r.client.MGet(ctx, r.key(KeyAccess), r.key(KeyRefresh)).Result()
	if err != nil {
		return Pair{}, errors.NewStoreReadError("redis", err)
	}

	var p Pair
	if s, ok := vals[0].(string); ok {
		p.Access = s
	}
	if s, ok := vals[1].(string); ok {
		p.Refresh = s
	}
	return p, nil
}

// Clear implements Store.
func (r *Redis) Clear(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(KeyAccess), r.key(KeyRefresh), r.key(KeyLegacy))
		return nil
	})
	if err != nil {
		return errors.NewStoreWriteError("redis", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

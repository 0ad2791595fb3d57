package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/sahilvermadev/mapx/internal/errors"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemory() }},
		{"file", func(t *testing.T) Store {
			return NewFile(filepath.Join(t.TempDir(), "nested", "session.json"))
		}},
		{"bolt", func(t *testing.T) Store {
			s, err := OpenBolt(filepath.Join(t.TempDir(), "session.db"), nil)
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			return NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
		}},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Run("EmptyLoad", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				p, err := s.Load(ctx)
				require.NoError(t, err)
				assert.True(t, p.Empty())
			})

			t.Run("SaveLoad", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Save(ctx, Pair{Access: "a1", Refresh: "r1"}))
				p, err := s.Load(ctx)
				require.NoError(t, err)
				assert.Equal(t, Pair{Access: "a1", Refresh: "r1"}, p)

				require.NoError(t, s.Save(ctx, Pair{Access: "a2", Refresh: "r1"}))
				p, err = s.Load(ctx)
				require.NoError(t, err)
				assert.Equal(t, "a2", p.Access)
			})

			t.Run("SaveWithoutRefreshRemovesOld", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Save(ctx, Pair{Access: "a1", Refresh: "r1"}))
				require.NoError(t, s.Save(ctx, Pair{Access: "a2"}))
				p, err := s.Load(ctx)
				require.NoError(t, err)
				assert.Equal(t, Pair{Access: "a2"}, p)
			})

			t.Run("ClearIsIdempotent", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				require.NoError(t, s.Save(ctx, Pair{Access: "a", Refresh: "r"}))
				require.NoError(t, s.Clear(ctx))
				once, err := s.Load(ctx)
				require.NoError(t, err)

				require.NoError(t, s.Clear(ctx))
				twice, err := s.Load(ctx)
				require.NoError(t, err)

				assert.True(t, once.Empty())
				assert.Equal(t, once, twice)
			})

			t.Run("ConcurrentSavesNeverMix", func(t *testing.T) {
				s := b.open(t)
				defer s.Close()

				var wg sync.WaitGroup
				for _, p := range []Pair{{Access: "a1", Refresh: "r1"}, {Access: "a2", Refresh: "r2"}} {
					wg.Add(1)
					go func(p Pair) {
						defer wg.Done()
						for i := 0; i < 20; i++ {
							assert.NoError(t, s.Save(ctx, p))
						}
					}(p)
				}
				wg.Wait()

				p, err := s.Load(ctx)
				require.NoError(t, err)
				assert.Contains(t, []Pair{{Access: "a1", Refresh: "r1"}, {Access: "a2", Refresh: "r2"}}, p)
			})
		})
	}
}

func TestMemory_ClearRemovesLegacyKey(t *testing.T) {
	m := NewMemory()
	m.SetRaw(KeyLegacy, "old-token")

	require.NoError(t, m.Clear(context.Background()))

	_, ok := m.Raw(KeyLegacy)
	assert.False(t, ok)
}

func TestBolt_ClearRemovesLegacyKey(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "session.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.DB().Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(KeyLegacy), []byte("old-token"))
	}))

	require.NoError(t, s.Clear(context.Background()))

	require.NoError(t, s.DB().View(func(tx *bbolt.Tx) error {
		assert.Nil(t, tx.Bucket(sessionBucket).Get([]byte(KeyLegacy)))
		return nil
	}))
}

func TestRedis_ClearRemovesLegacyKeyAndHonorsPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tab:")
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Pair{Access: "a", Refresh: "r"}))
	got, err := mr.Get("tab:" + KeyAccess)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	require.NoError(t, mr.Set("tab:"+KeyLegacy, "old-token"))
	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("tab:"+KeyLegacy))
	assert.False(t, mr.Exists("tab:"+KeyAccess))
}

func TestRedis_SharedAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	first := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	second := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer first.Close()
	defer second.Close()

	require.NoError(t, first.Save(ctx, Pair{Access: "shared", Refresh: "r"}))
	p, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shared", p.Access)

	require.NoError(t, second.Clear(ctx))
	p, err = first.Load(ctx)
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestFile_PermissionsAndCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFile(path)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Pair{Access: "a", Refresh: "r"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err = s.Load(ctx)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStoreRead))

	require.NoError(t, s.Clear(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Config{Path: filepath.Join(dir, "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = Open(ctx, Config{Backend: BackendBolt, Path: filepath.Join(dir, "b", "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &Bolt{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	s, err = Open(ctx, Config{Backend: BackendRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: BackendRedis})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))

	_, err = Open(ctx, Config{Backend: "etcd"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "session.json", filepath.Base(DefaultPath(BackendFile)))
	assert.Equal(t, "session.db", filepath.Base(DefaultPath(BackendBolt)))
}

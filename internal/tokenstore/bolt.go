package tokenstore

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/sahilvermadev/mapx/internal/errors"
)

var sessionBucket = []byte("session")

// Bolt keeps the pair in a bbolt bucket.
type Bolt struct {
	db *bbolt.DB
}

var _ Store = (*Bolt)(nil)

// NewBolt returns a Store backed by db.
func NewBolt(db *bbolt.DB) *Bolt {
	return &Bolt{db: db}
}

// OpenBolt opens the database at path.
func OpenBolt(path string, options *bbolt.Options) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, errors.NewStoreReadError("bolt", err)
	}
	return NewBolt(db), nil
}

// Save implements Store.
func (b *Bolt) Save(_ context.Context, p Pair) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(sessionBucket)
		if err != nil {
			return err
		}
		for k, v := range p.fields() {
			if v == "" {
				if err := bkt.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := bkt.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.NewStoreWriteError("bolt", err)
	}
	return nil
}

// Load implements Store.
func (b *Bolt) Load(_ context.Context) (Pair, error) {
	var p Pair
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionBucket)
		if bkt == nil {
			return nil
		}
		p.Access = string(bkt.Get([]byte(KeyAccess)))
		p.Refresh = string(bkt.Get([]byte(KeyRefresh)))
		return nil
	})
	if err != nil {
		return Pair{}, errors.NewStoreReadError("bolt", err)
	}
	return p, nil
}

// Clear implements Store.
func (b *Bolt) Clear(_ context.Context) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionBucket)
		if bkt == nil {
			return nil
		}
		for _, k := range []string{KeyAccess, KeyRefresh, KeyLegacy} {
			if err := bkt.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.NewStoreWriteError("bolt", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// DB exposes the underlying database.
func (b *Bolt) DB() *bbolt.DB { return b.db }

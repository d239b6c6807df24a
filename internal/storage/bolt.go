package storage

import (
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

// boltBucket is the single bucket holding all sal keys.
var boltBucket = []byte("sal")

// BoltBackend is a Backend stored in a Bolt database file. Every Put runs in
// its own write transaction, so the durability contract of Backend holds:
// once Put returns nil the value is fsynced.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) a Bolt-backed store at the given path.
func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists(boltBucket)
		return berr
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create bucket: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

// Get returns the value for the key, or ErrNotFound.
func (b *BoltBackend) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put durably stores the value under the key.
func (b *BoltBackend) Put(key string, value []byte) error {
	if key == "" {
		return ErrKeyEmpty
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), value)
	})
}

// Close closes the underlying database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

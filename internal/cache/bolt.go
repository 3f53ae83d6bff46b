package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"xsync-go/internal/xsync"
)

var filesBucket = []byte("files")

var entryEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: building cbor encoder: %v", err))
	}
	return em
}()

// boltEntry is the CBOR value stored per key.
type boltEntry struct {
	ExpiresAt int64            `cbor:"1,keyasint"` // unix nanoseconds
	Record    xsync.FileRecord `cbor:"2,keyasint"`
}

// BoltCache is a TTL cache persisted in a bbolt file, so cached records
// survive a server restart.
type BoltCache struct {
	db    *bolt.DB
	clock xsync.Clock
}

var _ xsync.MetadataCache = (*BoltCache)(nil)

func NewBoltCache(path string, clock xsync.Clock) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(filesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}
	return &BoltCache{db: db, clock: clock}, nil
}

func (c *BoltCache) Get(_ context.Context, key string) (*xsync.FileRecord, error) {
	var entry *boltEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(filesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var e boltEntry
		if err := cbor.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decoding cache entry %s: %w", key, err)
		}
		entry = &e
		return nil
	})
	if err != nil || entry == nil {
		return nil, err
	}
	if c.clock.Now().UnixNano() >= entry.ExpiresAt {
		return nil, c.Delete(context.Background(), key)
	}
	return &entry.Record, nil
}

func (c *BoltCache) Set(_ context.Context, key string, rec *xsync.FileRecord, ttl time.Duration) error {
	raw, err := entryEncMode.Marshal(boltEntry{
		ExpiresAt: c.clock.Now().Add(ttl).UnixNano(),
		Record:    *rec,
	})
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Put([]byte(key), raw)
	})
}

func (c *BoltCache) Delete(_ context.Context, key string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).Delete([]byte(key))
	})
}

// Purge removes every expired entry and returns how many it removed.
func (c *BoltCache) Purge() (int, error) {
	now := c.clock.Now().UnixNano()
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e boltEntry
			if err := cbor.Unmarshal(v, &e); err != nil || now >= e.ExpiresAt {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}

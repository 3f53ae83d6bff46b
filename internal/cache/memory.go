// Package cache implements xsync.MetadataCache backends.
package cache

import (
	"context"
	"sync"
	"time"

	"xsync-go/internal/xsync"
)

type memoryEntry struct {
	rec       xsync.FileRecord
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Expired entries are dropped on
// read.
type MemoryCache struct {
	mu      sync.Mutex
	clock   xsync.Clock
	entries map[string]memoryEntry
}

var _ xsync.MetadataCache = (*MemoryCache)(nil)

func NewMemoryCache(clock xsync.Clock) *MemoryCache {
	return &MemoryCache{clock: clock, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*xsync.FileRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return cloneRecord(&e.rec), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, rec *xsync.FileRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{rec: *cloneRecord(rec), expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Close() error { return nil }

func cloneRecord(rec *xsync.FileRecord) *xsync.FileRecord {
	out := *rec
	out.ChunkHashes = append([]string(nil), rec.ChunkHashes...)
	return &out
}

// NoopCache never holds anything.
type NoopCache struct{}

var _ xsync.MetadataCache = NoopCache{}

func (NoopCache) Get(context.Context, string) (*xsync.FileRecord, error) { return nil, nil }
func (NoopCache) Set(context.Context, string, *xsync.FileRecord, time.Duration) error {
	return nil
}
func (NoopCache) Delete(context.Context, string) error { return nil }
func (NoopCache) Close() error                         { return nil }

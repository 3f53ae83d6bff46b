package cache

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"xsync-go/internal/config"
	"xsync-go/internal/testutil"
	"xsync-go/internal/xsync"
)

func testCaches(t *testing.T, clock xsync.Clock) map[string]xsync.MetadataCache {
	t.Helper()
	bc, err := NewBoltCache(filepath.Join(t.TempDir(), "cache.db"), clock)
	if err != nil {
		t.Fatalf("NewBoltCache() error: %v", err)
	}
	t.Cleanup(func() { bc.Close() })
	return map[string]xsync.MetadataCache{
		"memory": NewMemoryCache(clock),
		"bolt":   bc,
	}
}

func sampleRecord() *xsync.FileRecord {
	return &xsync.FileRecord{
		ID:               "file-1",
		Owner:            "alice@example.com",
		Path:             "docs/a.txt",
		LastModifiedTime: 1700000000000,
		ChunkCount:       2,
		TotalSize:        42,
		FileHash:         "ff00",
		ChunkHashes:      []string{"aa", "bb"},
		UpdatedAt:        time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestCache_SetGetExpire(t *testing.T) {
	t.Parallel()
	clock := testutil.FixedClock()
	ctx := context.Background()

	for name, c := range testCaches(t, clock) {
		t.Run(name, func(t *testing.T) {
			key := xsync.CacheKey("alice@example.com", name)
			if got, err := c.Get(ctx, key); got != nil || err != nil {
				t.Fatalf("Get() on empty cache = %v, %v", got, err)
			}

			want := sampleRecord()
			if err := c.Set(ctx, key, want, time.Minute); err != nil {
				t.Fatalf("Set() error: %v", err)
			}
			got, err := c.Get(ctx, key)
			if err != nil || got == nil {
				t.Fatalf("Get() = %v, %v", got, err)
			}
			if got.ID != want.ID || got.TotalSize != want.TotalSize || !slices.Equal(got.ChunkHashes, want.ChunkHashes) {
				t.Errorf("Get() = %+v, want %+v", got, want)
			}
			if !got.UpdatedAt.Equal(want.UpdatedAt) {
				t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, want.UpdatedAt)
			}

			if err := c.Delete(ctx, key); err != nil {
				t.Fatalf("Delete() error: %v", err)
			}
			if got, _ := c.Get(ctx, key); got != nil {
				t.Errorf("Get() after Delete = %+v, want nil", got)
			}
		})
	}

	// Expiry shares the clock, so run it after the subtests above.
	for name, c := range testCaches(t, clock) {
		key := "exp:" + name
		if err := c.Set(ctx, key, sampleRecord(), time.Minute); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Minute)
		if got, err := c.Get(ctx, key); got != nil || err != nil {
			t.Errorf("%s: Get() after ttl = %v, %v, want miss", name, got, err)
		}
	}
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemoryCache(testutil.FixedClock())
	rec := sampleRecord()
	_ = c.Set(ctx, "k", rec, time.Minute)
	rec.ChunkHashes[0] = "mutated"

	got, _ := c.Get(ctx, "k")
	if got.ChunkHashes[0] != "aa" {
		t.Errorf("cached record shares caller's slice: %v", got.ChunkHashes)
	}
}

func TestBoltCache_PersistsAndPurges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := testutil.FixedClock()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := NewBoltCache(path, clock)
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Set(ctx, "short", sampleRecord(), time.Second)
	_ = c.Set(ctx, "long", sampleRecord(), time.Hour)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = NewBoltCache(path, clock)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if got, _ := c.Get(ctx, "long"); got == nil {
		t.Fatal("entry lost across reopen")
	}

	clock.Advance(time.Minute)
	removed, err := c.Purge()
	if err != nil || removed != 1 {
		t.Errorf("Purge() = %d, %v, want 1", removed, err)
	}
}

func TestNewCacheFromConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     config.CacheConfig
		wantErr bool
	}{
		{name: "none", cfg: config.CacheConfig{Type: "none"}},
		{name: "empty type", cfg: config.CacheConfig{}},
		{name: "memory", cfg: config.CacheConfig{Type: "memory"}},
		{name: "bolt", cfg: config.CacheConfig{Type: "bolt", Path: filepath.Join(t.TempDir(), "c.db")}},
		{name: "bolt without path", cfg: config.CacheConfig{Type: "bolt"}, wantErr: true},
		{name: "redis", cfg: config.CacheConfig{Type: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCacheFromConfig(tt.cfg, testutil.FixedClock())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCacheFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if c != nil {
				c.Close()
			}
		})
	}
}

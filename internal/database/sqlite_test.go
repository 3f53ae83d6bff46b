package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"xsync-go/internal/xsync"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("file-%d", g.n)
}

func newTestRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()

	r, err := NewSQLiteRegistry(":memory:", fixedClock{time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}, &seqIDs{})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	if _, err := r.db.Exec(Schema); err != nil {
		r.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func meta(path string, size int64, hashes ...string) *xsync.Metadata {
	return &xsync.Metadata{
		FilePath:         path,
		FileSize:         size,
		FileHash:         "filehash-" + path,
		LastModifiedTime: 1700000000000,
		ChunkCount:       len(hashes),
		ChunkHashes:      hashes,
	}
}

// commit registers written and then commits m, the order ChunkDepot uses.
func commit(ctx context.Context, r *SQLiteRegistry, owner string, m *xsync.Metadata, written []xsync.ChunkRecord) (*xsync.FileRecord, error) {
	delta, err := r.RegisterChunks(ctx, written)
	if err != nil {
		return nil, err
	}
	return r.CommitUpload(ctx, owner, m, delta)
}

func chunks(hashes ...string) []xsync.ChunkRecord {
	out := make([]xsync.ChunkRecord, len(hashes))
	for i, h := range hashes {
		out[i] = xsync.ChunkRecord{Hash: h, Size: 100}
	}
	return out
}

func TestSQLiteRegistry_CommitUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("creates file and references", func(t *testing.T) {
		r := newTestRegistry(t)

		rec, err := commit(ctx, r, "alice", meta("a.txt", 300, "c1", "c2", "c3"), chunks("c1", "c2", "c3"))
		if err != nil {
			t.Fatalf("CommitUpload() error = %v", err)
		}
		if rec.ID != "file-1" || rec.TotalSize != 300 || rec.ChunkCount != 3 {
			t.Errorf("record = %+v", rec)
		}

		got, err := r.FindFile(ctx, "alice", "a.txt")
		if err != nil {
			t.Fatalf("FindFile() error = %v", err)
		}
		if got == nil {
			t.Fatal("FindFile() = nil")
		}
		if len(got.ChunkHashes) != 3 || got.ChunkHashes[2] != "c3" {
			t.Errorf("ChunkHashes = %v", got.ChunkHashes)
		}

		ords, err := r.FileChunkOrdinals(ctx, rec.ID)
		if err != nil {
			t.Fatalf("FileChunkOrdinals() error = %v", err)
		}
		want := map[int]string{0: "c1", 1: "c2", 2: "c3"}
		if fmt.Sprint(ords) != fmt.Sprint(want) {
			t.Errorf("ordinals = %v, want %v", ords, want)
		}
	})

	t.Run("repeated chunk indexed at first occurrence", func(t *testing.T) {
		r := newTestRegistry(t)

		rec, err := commit(ctx, r, "alice", meta("rep.bin", 400, "c1", "c2", "c1", "c3"), chunks("c1", "c2", "c3"))
		if err != nil {
			t.Fatalf("CommitUpload() error = %v", err)
		}
		ords, err := r.FileChunkOrdinals(ctx, rec.ID)
		if err != nil {
			t.Fatalf("FileChunkOrdinals() error = %v", err)
		}
		want := map[int]string{0: "c1", 1: "c2", 3: "c3"}
		if fmt.Sprint(ords) != fmt.Sprint(want) {
			t.Errorf("ordinals = %v, want %v", ords, want)
		}
		// The full order survives on the record.
		got, _ := r.FindFile(ctx, "alice", "rep.bin")
		if fmt.Sprint(got.ChunkHashes) != "[c1 c2 c1 c3]" {
			t.Errorf("ChunkHashes = %v", got.ChunkHashes)
		}
	})

	t.Run("shrinking file drops tail references", func(t *testing.T) {
		r := newTestRegistry(t)

		if _, err := commit(ctx, r, "alice", meta("s.txt", 400, "c1", "c2", "c3", "c4"), chunks("c1", "c2", "c3", "c4")); err != nil {
			t.Fatalf("first CommitUpload() error = %v", err)
		}
		rec, err := commit(ctx, r, "alice", meta("s.txt", 200, "c1", "c5"), chunks("c5"))
		if err != nil {
			t.Fatalf("second CommitUpload() error = %v", err)
		}
		if rec.ID != "file-1" {
			t.Errorf("upsert changed record id to %s", rec.ID)
		}
		ords, _ := r.FileChunkOrdinals(ctx, rec.ID)
		want := map[int]string{0: "c1", 1: "c5"}
		if fmt.Sprint(ords) != fmt.Sprint(want) {
			t.Errorf("ordinals = %v, want %v", ords, want)
		}

		orphans, err := r.ListOrphanChunks(ctx, 10)
		if err != nil {
			t.Fatalf("ListOrphanChunks() error = %v", err)
		}
		if len(orphans) != 3 {
			t.Errorf("got %d orphans, want 3 (c2, c3, c4)", len(orphans))
		}
	})

	t.Run("size change contributes delta", func(t *testing.T) {
		r := newTestRegistry(t)

		if _, err := commit(ctx, r, "alice", meta("d.txt", 100, "c1"), chunks("c1")); err != nil {
			t.Fatalf("CommitUpload() error = %v", err)
		}
		rec, err := commit(ctx, r, "alice", meta("d.txt", 100, "c1"), []xsync.ChunkRecord{{Hash: "c1", Size: 130}})
		if err != nil {
			t.Fatalf("CommitUpload() error = %v", err)
		}
		if rec.TotalSize != 130 {
			t.Errorf("TotalSize = %d, want 130", rec.TotalSize)
		}
	})

	t.Run("unknown chunk fails validation and leaves an orphan", func(t *testing.T) {
		r := newTestRegistry(t)

		_, err := commit(ctx, r, "alice", meta("v.txt", 200, "c1", "ghost"), chunks("c1"))
		if !errors.Is(err, xsync.ErrValidation) {
			t.Fatalf("CommitUpload() error = %v, want ErrValidation", err)
		}
		got, err := r.FindFile(ctx, "alice", "v.txt")
		if err != nil || got != nil {
			t.Errorf("FindFile() = %v, %v; want nil, nil", got, err)
		}
		orphans, err := r.ListOrphanChunks(ctx, 10)
		if err != nil || len(orphans) != 1 || orphans[0].Hash != "c1" {
			t.Errorf("ListOrphanChunks() = %+v, %v; want the registered c1", orphans, err)
		}
	})

	t.Run("register chunks reports size delta", func(t *testing.T) {
		r := newTestRegistry(t)

		if delta, err := r.RegisterChunks(ctx, chunks("c1", "c2")); err != nil || delta != 0 {
			t.Fatalf("RegisterChunks() = %d, %v; want 0", delta, err)
		}
		delta, err := r.RegisterChunks(ctx, []xsync.ChunkRecord{{Hash: "c1", Size: 80}, {Hash: "c3", Size: 50}})
		if err != nil || delta != -20 {
			t.Errorf("RegisterChunks() = %d, %v; want -20", delta, err)
		}
		if delta, err := r.RegisterChunks(ctx, nil); err != nil || delta != 0 {
			t.Errorf("RegisterChunks(nil) = %d, %v", delta, err)
		}
	})

	t.Run("metadata-only commit reuses stored chunks", func(t *testing.T) {
		r := newTestRegistry(t)

		if _, err := commit(ctx, r, "alice", meta("one.txt", 200, "c1", "c2"), chunks("c1", "c2")); err != nil {
			t.Fatalf("CommitUpload() error = %v", err)
		}
		if _, err := commit(ctx, r, "bob", meta("two.txt", 200, "c2", "c1"), nil); err != nil {
			t.Fatalf("metadata-only CommitUpload() error = %v", err)
		}
		got, _ := r.FindFile(ctx, "bob", "two.txt")
		if got == nil || got.Owner != "bob" {
			t.Errorf("FindFile() = %+v", got)
		}
	})
}

func TestSQLiteRegistry_DeleteFileAndGC(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if _, err := commit(ctx, r, "alice", meta("a.txt", 200, "shared", "onlyA"), chunks("shared", "onlyA")); err != nil {
		t.Fatalf("CommitUpload() error = %v", err)
	}
	if _, err := commit(ctx, r, "alice", meta("b.txt", 100, "shared"), nil); err != nil {
		t.Fatalf("CommitUpload() error = %v", err)
	}

	orphans, _ := r.ListOrphanChunks(ctx, 10)
	if len(orphans) != 0 {
		t.Fatalf("orphans before delete = %v", orphans)
	}

	existed, err := r.DeleteFile(ctx, "alice", "a.txt")
	if err != nil || !existed {
		t.Fatalf("DeleteFile() = %v, %v", existed, err)
	}
	existed, err = r.DeleteFile(ctx, "alice", "a.txt")
	if err != nil || existed {
		t.Errorf("second DeleteFile() = %v, %v; want false, nil", existed, err)
	}

	orphans, err = r.ListOrphanChunks(ctx, 10)
	if err != nil {
		t.Fatalf("ListOrphanChunks() error = %v", err)
	}
	if len(orphans) != 1 || orphans[0].Hash != "onlyA" {
		t.Fatalf("orphans = %v, want [onlyA]", orphans)
	}

	// A referenced chunk is never removed, even if asked.
	n, err := r.DeleteChunks(ctx, []string{"onlyA", "shared"})
	if err != nil {
		t.Fatalf("DeleteChunks() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteChunks() removed %d rows, want 1", n)
	}
	missing, _ := r.MissingChunks(ctx, []string{"onlyA", "shared"})
	if fmt.Sprint(missing) != "[onlyA]" {
		t.Errorf("MissingChunks() = %v, want [onlyA]", missing)
	}
}

func TestSQLiteRegistry_Users(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if u, err := r.FindUser(ctx, "a@example.com"); err != nil || u != nil {
		t.Fatalf("FindUser() = %v, %v; want nil, nil", u, err)
	}
	if err := r.CreateUser(ctx, "a@example.com", "hash"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := r.CreateUser(ctx, "a@example.com", "other"); !errors.Is(err, xsync.ErrConflict) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrConflict", err)
	}
	u, err := r.FindUser(ctx, "a@example.com")
	if err != nil || u == nil || u.PasswordHash != "hash" {
		t.Errorf("FindUser() = %+v, %v", u, err)
	}
}

func TestSQLiteRegistry_Stats(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if _, err := commit(ctx, r, "alice", meta("a.txt", 200, "c1", "c2"), chunks("c1", "c2")); err != nil {
		t.Fatalf("CommitUpload() error = %v", err)
	}
	n, size, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if n != 2 || size != 200 {
		t.Errorf("Stats() = %d, %d; want 2, 200", n, size)
	}
}

func TestSQLiteRegistry_MigrateAndBackup(t *testing.T) {
	dir := t.TempDir()
	r, err := NewSQLiteRegistry(filepath.Join(dir, "xsync.db"), nil, nil)
	if err != nil {
		t.Fatalf("NewSQLiteRegistry() error = %v", err)
	}
	defer r.Close()

	if err := r.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on a fresh database succeeded")
	}
	if err := r.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := r.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() after Migrate() = %v", err)
	}

	ctx := context.Background()
	if _, err := commit(ctx, r, "alice", meta("a.txt", 100, "c1"), chunks("c1")); err != nil {
		t.Fatalf("CommitUpload() error = %v", err)
	}
	backup := filepath.Join(dir, "backup.db")
	if err := r.BackupTo(backup); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyReg, err := NewSQLiteRegistry(backup, nil, nil)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copyReg.Close()
	got, err := copyReg.FindFile(ctx, "alice", "a.txt")
	if err != nil || got == nil {
		t.Errorf("backup FindFile() = %v, %v", got, err)
	}
}

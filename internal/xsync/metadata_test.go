package xsync_test

import (
	"encoding/json"
	"errors"
	"testing"

	"xsync-go/internal/xsync"
)

func TestMetadata_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *xsync.Metadata {
		return &xsync.Metadata{
			FilePath:         "a/b.txt",
			FileSize:         10,
			FileHash:         "ff",
			LastModifiedTime: 1700000000000,
			ChunkCount:       2,
			ChunkHashes:      []string{"aa", "bb"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*xsync.Metadata)
		ok     bool
	}{
		{"valid", func(*xsync.Metadata) {}, true},
		{"empty file", func(m *xsync.Metadata) { m.FileSize, m.ChunkCount, m.ChunkHashes = 0, 0, []string{} }, true},
		{"no path", func(m *xsync.Metadata) { m.FilePath = "" }, false},
		{"negative size", func(m *xsync.Metadata) { m.FileSize = -1 }, false},
		{"no file hash", func(m *xsync.Metadata) { m.FileHash = "" }, false},
		{"count mismatch", func(m *xsync.Metadata) { m.ChunkCount = 3 }, false},
		{"blank chunk hash", func(m *xsync.Metadata) { m.ChunkHashes[1] = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := valid()
			tt.mutate(m)
			err := m.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, xsync.ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestMetadata_WireNames(t *testing.T) {
	t.Parallel()
	raw := `{"filepath":"x","filesize":3,"fileHash":"h","lastModifiedTime":5,"chunkCount":1,"chunkHashes":["c"]}`
	var m xsync.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}
	if m.FilePath != "x" || m.FileSize != 3 || m.LastModifiedTime != 5 || m.ChunkHashes[0] != "c" {
		t.Errorf("decoded %+v", m)
	}
}

func TestFileRecord_Metadata(t *testing.T) {
	t.Parallel()
	rec := &xsync.FileRecord{Path: "p", TotalSize: 7, FileHash: "h", LastModifiedTime: 9, ChunkCount: 2, ChunkHashes: []string{"a", "a"}}
	m := rec.Metadata()
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(m.HashSet()) != 1 {
		t.Errorf("HashSet() = %v, want one distinct hash", m.HashSet())
	}
}

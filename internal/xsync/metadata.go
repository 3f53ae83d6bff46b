package xsync

import (
	"fmt"
	"time"
)

// Metadata is the wire form of a file's synced state.
// LastModifiedTime is in milliseconds since the Unix epoch.
type Metadata struct {
	FilePath         string   `json:"filepath"`
	FileSize         int64    `json:"filesize"`
	FileHash         string   `json:"fileHash"`
	LastModifiedTime int64    `json:"lastModifiedTime"`
	ChunkCount       int      `json:"chunkCount"`
	ChunkHashes      []string `json:"chunkHashes"`
}

// Validate checks the structural invariants the server relies on.
func (m *Metadata) Validate() error {
	if m.FilePath == "" {
		return fmt.Errorf("%w: metadata has no filepath", ErrValidation)
	}
	if m.FileSize < 0 {
		return fmt.Errorf("%w: negative filesize %d", ErrValidation, m.FileSize)
	}
	if m.FileHash == "" {
		return fmt.Errorf("%w: metadata has no fileHash", ErrValidation)
	}
	if m.ChunkCount != len(m.ChunkHashes) {
		return fmt.Errorf("%w: chunkCount %d does not match %d chunk hashes", ErrValidation, m.ChunkCount, len(m.ChunkHashes))
	}
	for i, h := range m.ChunkHashes {
		if h == "" {
			return fmt.Errorf("%w: empty chunk hash at position %d", ErrValidation, i)
		}
	}
	return nil
}

// HashSet returns the distinct chunk hashes.
func (m *Metadata) HashSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.ChunkHashes))
	for _, h := range m.ChunkHashes {
		set[h] = struct{}{}
	}
	return set
}

// ModTime converts LastModifiedTime to a time.Time.
func (m *Metadata) ModTime() time.Time {
	return time.UnixMilli(m.LastModifiedTime)
}

// FileRecord is the server's record of one synced file. ChunkHashes is the
// authoritative reconstruction order; the association index the registry
// keeps alongside it only counts references.
type FileRecord struct {
	ID               string
	Owner            string
	Path             string
	LastModifiedTime int64
	ChunkCount       int
	TotalSize        int64
	FileHash         string
	ChunkHashes      []string
	UpdatedAt        time.Time
}

// Metadata projects the record into its wire form.
func (f *FileRecord) Metadata() *Metadata {
	return &Metadata{
		FilePath:         f.Path,
		FileSize:         f.TotalSize,
		FileHash:         f.FileHash,
		LastModifiedTime: f.LastModifiedTime,
		ChunkCount:       f.ChunkCount,
		ChunkHashes:      f.ChunkHashes,
	}
}

// ChunkRecord is a registry entry. Size is the stored (post-transform) size.
type ChunkRecord struct {
	Hash string
	Size int64
}

// User is an account that owns file records.
type User struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

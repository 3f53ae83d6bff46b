package xsync

import (
	"context"
	"time"
)

// Registry is the server's durable accounting of chunks, file records and
// the file-to-chunk reference index.
type Registry interface {
	// RegisterChunks upserts rows for stored payloads in one transaction
	// and returns the size change of chunks already registered with a
	// different size. Rows no file references are orphans for garbage
	// collection.
	RegisterChunks(ctx context.Context, chunks []ChunkRecord) (int64, error)

	// CommitUpload records a completed upload in one transaction: it
	// checks every hash in meta is registered, upserts the file record
	// with total size meta.FileSize+sizeDelta, and rewrites the file's
	// reference index.
	CommitUpload(ctx context.Context, owner string, meta *Metadata, sizeDelta int64) (*FileRecord, error)

	// FindFile returns nil, nil when no record exists.
	FindFile(ctx context.Context, owner, path string) (*FileRecord, error)

	// DeleteFile removes a record and its references. It reports whether
	// a record existed. Chunks are left for garbage collection.
	DeleteFile(ctx context.Context, owner, path string) (bool, error)

	// MissingChunks returns the subset of hashes with no registry row, in
	// input order.
	MissingChunks(ctx context.Context, hashes []string) ([]string, error)

	// ListOrphanChunks returns up to limit chunks no file references.
	ListOrphanChunks(ctx context.Context, limit int) ([]ChunkRecord, error)

	// DeleteChunks removes registry rows for hashes that are still
	// unreferenced and returns how many were removed.
	DeleteChunks(ctx context.Context, hashes []string) (int64, error)

	// CreateUser fails with ErrConflict if the email is taken.
	CreateUser(ctx context.Context, email, passwordHash string) error

	// FindUser returns nil, nil when no user exists.
	FindUser(ctx context.Context, email string) (*User, error)

	Close() error
}

// ObjectStore holds chunk payloads by content address. Puts are
// idempotent: storing the same name twice stores the same bytes.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte) error

	// Get returns ErrObjectNotFound (wrapped) for unknown names.
	Get(ctx context.Context, name string) ([]byte, error)

	Delete(ctx context.Context, name string) error

	// DeleteMany attempts every name and returns the failures keyed by
	// name. Deleting a missing object is not a failure.
	DeleteMany(ctx context.Context, names []string) map[string]error

	// ValidateSetup checks the backend is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// MetadataCache is an optional lookaside cache for file records.
type MetadataCache interface {
	// Get returns nil, nil on a miss or an expired entry.
	Get(ctx context.Context, key string) (*FileRecord, error)
	Set(ctx context.Context, key string, rec *FileRecord, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CacheKey is the metadata cache key for a user's file.
func CacheKey(owner, path string) string {
	return "file:" + owner + ":" + path
}

package xsync

import (
	"context"
	"io"
)

// Remote is the client's view of the server.
type Remote interface {
	// FetchMetadata returns nil, nil when the server has no record.
	FetchMetadata(ctx context.Context, path string) (*Metadata, error)

	// UploadBatch sends a framed batch of new chunk records together with
	// the batch digest, the digest algorithm name and the file metadata.
	// batch is read to completion.
	UploadBatch(ctx context.Context, batchDigest, algorithm string, meta *Metadata, batch io.Reader) error

	// FetchBatch returns a reader over the framed records for hashes, one
	// per hash in request order. The caller closes it.
	FetchBatch(ctx context.Context, hashes []string) (io.ReadCloser, error)

	// MissingChunks returns which hashes the server does not hold.
	MissingChunks(ctx context.Context, hashes []string) ([]string, error)

	// DeleteMetadata reports whether a record existed.
	DeleteMetadata(ctx context.Context, path string) (bool, error)
}

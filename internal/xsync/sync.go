package xsync

import (
	"context"
	"errors"
	"fmt"
	"io"

	"xsync-go/internal/chunkcache"
	"xsync-go/internal/chunker"
	"xsync-go/internal/codec"
	"xsync-go/internal/hasher"
	"xsync-go/internal/transform"
)

// Action is what a sync did to a file.
type Action string

const (
	ActionNoop     Action = "noop"
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionMerge    Action = "merge"
)

// Result describes one file sync. Chunks is the length of the file's
// chunk sequence and Transferred how many chunk records crossed the wire.
// Err is only set in results returned by SyncDir.
type Result struct {
	Path        string
	Action      Action
	Chunks      int
	Transferred int
	Err         error
}

// SyncConfig holds the client-side tunables of a SyncService.
type SyncConfig struct {
	Algorithm         hasher.Algorithm
	ExpectedChunkSize int
	Pipeline          *transform.Pipeline // nil means no transforms
}

// SyncService synchronizes files under a local root with a Remote.
// Each call owns all of its transfer state; a SyncService is safe for
// concurrent use on different files.
type SyncService struct {
	local  LocalFS
	remote Remote
	cache  *chunkcache.Cache
	logger Logger
	cfg    SyncConfig
}

func NewSyncService(local LocalFS, remote Remote, cache *chunkcache.Cache, logger Logger, cfg SyncConfig) *SyncService {
	if cfg.ExpectedChunkSize == 0 {
		cfg.ExpectedChunkSize = chunker.DefaultExpectedSize
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = transform.NewPipeline()
	}
	return &SyncService{
		local:  local,
		remote: remote,
		cache:  cache,
		logger: logger.With("component", "sync"),
		cfg:    cfg,
	}
}

// Sync brings one file in line with the remote. Whichever side has the
// later modification time wins; equal times mean nothing to do.
func (s *SyncService) Sync(ctx context.Context, rawPath string) (Result, error) {
	p, err := s.local.Resolve(rawPath)
	if err != nil {
		return Result{Path: rawPath}, err
	}
	res := Result{Path: p.Rel}

	info, err := s.local.Stat(p)
	if err != nil {
		return res, err
	}
	if info != nil && !info.Mode().IsRegular() {
		return res, fmt.Errorf("%w: %s is not a regular file", ErrValidation, p.Rel)
	}

	remote, err := s.remote.FetchMetadata(ctx, p.Rel)
	if err != nil {
		return res, fmt.Errorf("fetching remote metadata for %s: %w", p.Rel, err)
	}

	switch {
	case remote != nil && info != nil && remote.LastModifiedTime == info.ModTime().UnixMilli():
		res.Action = ActionNoop
		res.Chunks = remote.ChunkCount
		return res, nil

	case info == nil && remote == nil:
		return res, fmt.Errorf("%w: %s exists neither locally nor remotely", ErrNotFound, p.Rel)

	case info == nil:
		res.Action = ActionDownload
		res.Chunks = remote.ChunkCount
		res.Transferred, err = s.download(ctx, p, remote)

	case remote == nil || info.ModTime().UnixMilli() > remote.LastModifiedTime:
		res.Action = ActionUpload
		res.Chunks, res.Transferred, err = s.upload(ctx, p, info.Size(), info.ModTime().UnixMilli(), remote)

	default:
		res.Action = ActionMerge
		res.Chunks = remote.ChunkCount
		res.Transferred, err = s.merge(ctx, p, info.Size(), remote)
	}
	if err != nil {
		return res, err
	}
	s.logger.Info("synced file", "path", p.Rel, "action", res.Action, "chunks", res.Chunks, "transferred", res.Transferred)
	return res, nil
}

// TrySync reports whether Sync succeeded, logging the reason when not.
func (s *SyncService) TrySync(ctx context.Context, rawPath string) bool {
	if _, err := s.Sync(ctx, rawPath); err != nil {
		s.logger.Error("sync failed", "path", rawPath, "error", err)
		return false
	}
	return true
}

// SyncDir syncs every file under dir that is not ignored. A failed file
// does not stop the walk; its Result carries the error.
func (s *SyncService) SyncDir(ctx context.Context, rawDir string, recursive bool) ([]Result, error) {
	dir, err := s.local.Resolve(rawDir)
	if err != nil {
		return nil, err
	}
	info, err := s.local.Stat(dir)
	if err != nil {
		return nil, err
	}
	if info == nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrValidation, dir.Rel)
	}

	files, err := s.local.FindFiles(dir, recursive)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.Sync(ctx, f.Abs)
		if err != nil {
			s.logger.Error("sync failed", "path", f.Rel, "error", err)
			res.Err = err
		}
		results = append(results, res)
	}
	return results, nil
}

// Delete removes the remote record for a file. The local file is kept.
func (s *SyncService) Delete(ctx context.Context, rawPath string) (bool, error) {
	p, err := s.local.Resolve(rawPath)
	if err != nil {
		return false, err
	}
	existed, err := s.remote.DeleteMetadata(ctx, p.Rel)
	if err != nil {
		return false, fmt.Errorf("deleting remote metadata for %s: %w", p.Rel, err)
	}
	return existed, nil
}

// decodeChunk checks a received payload against its address and undoes
// the transforms.
func (s *SyncService) decodeChunk(want string, payload []byte) ([]byte, error) {
	if got := s.cfg.Algorithm.Hash(payload); got != want {
		return nil, fmt.Errorf("%w: chunk %s arrived as %s", ErrIntegrityMismatch, want, got)
	}
	plain, err := s.cfg.Pipeline.Inbound(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding chunk %s: %w", ErrIntegrityMismatch, want, err)
	}
	return plain, nil
}

// chunkFile runs the chunker over a local file and calls fn with each
// plaintext chunk, its transformed payload and that payload's address.
// It returns the plaintext digest and size.
func (s *SyncService) chunkFile(p *Path, size int64, fn func(plain, payload []byte, hash string) error) (string, int64, error) {
	f, err := s.local.Fs().Open(p.Abs)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", p.Rel, err)
	}
	defer f.Close()

	ch, err := chunker.New(f, size, s.cfg.ExpectedChunkSize)
	if err != nil {
		return "", 0, err
	}
	digest := s.cfg.Algorithm.New()
	var total int64
	for plain, err := range ch.All() {
		if err != nil {
			return "", 0, fmt.Errorf("chunking %s: %w", p.Rel, err)
		}
		digest.Write(plain)
		total += int64(len(plain))

		payload, err := s.cfg.Pipeline.Outbound(plain)
		if err != nil {
			return "", 0, fmt.Errorf("transforming chunk of %s: %w", p.Rel, err)
		}
		if err := fn(plain, payload, s.cfg.Algorithm.Hash(payload)); err != nil {
			return "", 0, err
		}
	}
	return digest.Sum(), total, nil
}

// readRecords reads exactly len(hashes) records, handing each verified
// plaintext to fn with its payload.
func (s *SyncService) readRecords(body io.Reader, hashes []string, fn func(i int, plain, payload []byte) error) error {
	r := codec.NewReader(body)
	for i, want := range hashes {
		payload, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("%w: received %d of %d chunks: %w", ErrTransferFailure, i, len(hashes), err)
		}
		plain, err := s.decodeChunk(want, payload)
		if err != nil {
			return err
		}
		if err := fn(i, plain, payload); err != nil {
			return err
		}
	}
	return nil
}

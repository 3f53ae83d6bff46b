package xsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// download rebuilds a file that exists only remotely. Chunks are written
// to a partial file beside the target, which is renamed into place only
// once the whole-file digest matches.
func (s *SyncService) download(ctx context.Context, p *Path, remote *Metadata) (int, error) {
	fsys := s.local.Fs()
	if err := fsys.MkdirAll(filepath.Dir(p.Abs), 0755); err != nil {
		return 0, fmt.Errorf("creating parent of %s: %w", p.Rel, err)
	}
	part := p.Abs + PartialSuffix
	f, err := fsys.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", part, err)
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			fsys.Remove(part)
		}
	}()

	digest := s.cfg.Algorithm.New()
	if len(remote.ChunkHashes) > 0 {
		body, err := s.remote.FetchBatch(ctx, remote.ChunkHashes)
		if err != nil {
			return 0, fmt.Errorf("fetching chunks of %s: %w", p.Rel, err)
		}
		defer body.Close()

		err = s.readRecords(body, remote.ChunkHashes, func(i int, plain, payload []byte) error {
			if _, err := f.Write(plain); err != nil {
				return fmt.Errorf("writing %s: %w", part, err)
			}
			digest.Write(plain)
			if err := s.cache.Put(remote.ChunkHashes[i], payload); err != nil {
				s.logger.Warn("failed to cache chunk", "hash", remote.ChunkHashes[i], "error", err)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	if got := digest.Sum(); got != remote.FileHash {
		return 0, fmt.Errorf("%w: %s rebuilt as %s, want %s", ErrIntegrityMismatch, p.Rel, got, remote.FileHash)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", part, err)
	}
	if err := fsys.Rename(part, p.Abs); err != nil {
		return 0, fmt.Errorf("moving %s into place: %w", p.Rel, err)
	}
	committed = true
	s.setModTime(p, remote)
	return len(remote.ChunkHashes), nil
}

// merge rebuilds a stale local file from the remote chunk sequence,
// reusing every chunk the local copy still has. The old file is moved
// aside first and restored if the result does not verify.
func (s *SyncService) merge(ctx context.Context, p *Path, size int64, remote *Metadata) (int, error) {
	wanted := remote.HashSet()
	local := make(map[string]bool)
	_, _, err := s.chunkFile(p, size, func(_, payload []byte, hash string) error {
		local[hash] = true
		if _, ok := wanted[hash]; ok {
			return s.cache.Put(hash, payload)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var remoteOnly []string
	seen := make(map[string]bool)
	for _, h := range remote.ChunkHashes {
		if local[h] || seen[h] || s.cache.Has(h) {
			continue
		}
		seen[h] = true
		remoteOnly = append(remoteOnly, h)
	}

	if len(remoteOnly) > 0 {
		body, err := s.remote.FetchBatch(ctx, remoteOnly)
		if err != nil {
			return 0, fmt.Errorf("fetching chunks of %s: %w", p.Rel, err)
		}
		err = s.readRecords(body, remoteOnly, func(i int, _, payload []byte) error {
			return s.cache.Put(remoteOnly[i], payload)
		})
		body.Close()
		if err != nil {
			return 0, err
		}
	}

	if err := s.rebuild(p, remote); err != nil {
		return 0, err
	}
	return len(remoteOnly), nil
}

// rebuild writes the file from cached chunks in the remote's order.
func (s *SyncService) rebuild(p *Path, remote *Metadata) (err error) {
	fsys := s.local.Fs()
	backup, err := s.cache.Backup(p.Abs)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			if derr := backup.Discard(); derr != nil {
				s.logger.Warn("failed to remove backup", "path", backup.Path(), "error", derr)
			}
			return
		}
		if rerr := backup.Restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	f, err := fsys.OpenFile(p.Abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", p.Rel, err)
	}
	defer f.Close()

	digest := s.cfg.Algorithm.New()
	for _, h := range remote.ChunkHashes {
		payload, err := s.cache.Get(h)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailure, err)
		}
		plain, err := s.decodeChunk(h, payload)
		if err != nil {
			// Drop the bad copy so the next sync fetches it again.
			_ = s.cache.Remove(h)
			return err
		}
		if _, err := f.Write(plain); err != nil {
			return fmt.Errorf("writing %s: %w", p.Rel, err)
		}
		digest.Write(plain)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", p.Rel, err)
	}
	if got := digest.Sum(); got != remote.FileHash {
		return fmt.Errorf("%w: %s rebuilt as %s, want %s", ErrIntegrityMismatch, p.Rel, got, remote.FileHash)
	}
	s.setModTime(p, remote)
	return nil
}

// setModTime stamps the remote modification time so the next sync is a
// no-op. Failure only costs a redundant sync later.
func (s *SyncService) setModTime(p *Path, remote *Metadata) {
	mt := time.UnixMilli(remote.LastModifiedTime)
	if err := s.local.Fs().Chtimes(p.Abs, mt, mt); err != nil {
		s.logger.Warn("failed to set modification time", "path", p.Rel, "error", err)
	}
}

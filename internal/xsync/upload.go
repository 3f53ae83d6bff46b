package xsync

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"xsync-go/internal/codec"
	"xsync-go/internal/hasher"
)

// probeWindow is how many unknown chunks are held in memory before the
// server is asked which of them it already stores.
const probeWindow = 256

type pendingChunk struct {
	hash    string
	payload []byte
}

// uploadBatch is the batching context of a single upload: the framed
// records of every chunk the server lacks, spooled to a scratch file,
// and the digest over their payloads.
type uploadBatch struct {
	remote  Remote
	file    afero.File
	w       *codec.Writer
	digest  *hasher.Hasher
	known   map[string]struct{}
	queued  map[string]bool
	pending []pendingChunk
}

func newUploadBatch(remote Remote, file afero.File, alg hasher.Algorithm, known map[string]struct{}) *uploadBatch {
	return &uploadBatch{
		remote: remote,
		file:   file,
		w:      codec.NewWriter(file),
		digest: alg.New(),
		known:  known,
		queued: make(map[string]bool),
	}
}

// add offers one chunk. Chunks the last remote metadata already lists are
// skipped outright; others wait for the next probe.
func (b *uploadBatch) add(ctx context.Context, hash string, payload []byte) error {
	if _, ok := b.known[hash]; ok || b.queued[hash] {
		return nil
	}
	b.pending = append(b.pending, pendingChunk{hash: hash, payload: payload})
	if len(b.pending) >= probeWindow {
		return b.flush(ctx)
	}
	return nil
}

// flush asks the server which pending chunks it lacks and spools those.
func (b *uploadBatch) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	hashes := make([]string, 0, len(b.pending))
	seen := make(map[string]bool, len(b.pending))
	for _, c := range b.pending {
		if !seen[c.hash] {
			seen[c.hash] = true
			hashes = append(hashes, c.hash)
		}
	}
	missing, err := b.remote.MissingChunks(ctx, hashes)
	if err != nil {
		return fmt.Errorf("probing stored chunks: %w", err)
	}
	want := make(map[string]bool, len(missing))
	for _, h := range missing {
		want[h] = true
	}

	for _, c := range b.pending {
		if !want[c.hash] || b.queued[c.hash] {
			continue
		}
		if err := b.w.WriteRecord(c.payload); err != nil {
			return fmt.Errorf("spooling chunk %s: %w", c.hash, err)
		}
		b.digest.Write(c.payload)
		b.queued[c.hash] = true
	}
	b.pending = b.pending[:0]
	return nil
}

// reader flushes what is pending and rewinds the spool for sending.
func (b *uploadBatch) reader(ctx context.Context) (io.Reader, error) {
	if err := b.flush(ctx); err != nil {
		return nil, err
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding batch: %w", err)
	}
	return b.file, nil
}

// upload chunks the local file, sends the chunks the server lacks and
// commits the new metadata. It returns the chunk count and the number of
// chunks sent.
func (s *SyncService) upload(ctx context.Context, p *Path, size, modTime int64, remote *Metadata) (int, int, error) {
	known := map[string]struct{}{}
	if remote != nil {
		known = remote.HashSet()
	}

	spool, cleanup, err := s.cache.TempFile("batch-*")
	if err != nil {
		return 0, 0, err
	}
	defer cleanup()
	batch := newUploadBatch(s.remote, spool, s.cfg.Algorithm, known)

	var hashes []string
	fileHash, total, err := s.chunkFile(p, size, func(_, payload []byte, hash string) error {
		hashes = append(hashes, hash)
		return batch.add(ctx, hash, payload)
	})
	if err != nil {
		return 0, 0, err
	}
	body, err := batch.reader(ctx)
	if err != nil {
		return 0, 0, err
	}

	meta := &Metadata{
		FilePath:         p.Rel,
		FileSize:         total,
		FileHash:         fileHash,
		LastModifiedTime: modTime,
		ChunkCount:       len(hashes),
		ChunkHashes:      hashes,
	}
	if hashes == nil {
		meta.ChunkHashes = []string{}
	}
	if err := s.remote.UploadBatch(ctx, batch.digest.Sum(), s.cfg.Algorithm.String(), meta, body); err != nil {
		return 0, 0, fmt.Errorf("uploading %s: %w", p.Rel, err)
	}
	return len(hashes), batch.w.Records(), nil
}

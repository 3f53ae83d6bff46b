package xsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"xsync-go/internal/codec"
	"xsync-go/internal/hasher"
	"xsync-go/internal/ratelimit"
	"xsync-go/internal/workerpool"
)

// fetchWindow is how many object reads a batch fetch keeps in flight
// ahead of the record being written.
const fetchWindow = 16

// DepotMetrics receives ingest and garbage collection counts.
type DepotMetrics interface {
	ChunksIngested(stored, deduplicated int, bytes int64)
	GarbageCollected(deleted int, freed int64, err error)
}

type nopMetrics struct{}

func (nopMetrics) ChunksIngested(int, int, int64)     {}
func (nopMetrics) GarbageCollected(int, int64, error) {}

// DepotConfig holds the server-side tunables of a ChunkDepot.
type DepotConfig struct {
	Algorithm   hasher.Algorithm
	CacheTTL    time.Duration
	UploadRate  int // bytes per second per request, 0 = unlimited
	FetchRate   int
	GCBatchSize int
}

// IngestRequest is one upload batch.
type IngestRequest struct {
	BatchDigest string
	Algorithm   string
	Meta        *Metadata
	Batch       io.Reader
}

// GCReport summarizes one garbage collection pass.
type GCReport struct {
	Scanned    int
	Deleted    int
	BytesFreed int64
}

// ChunkDepot is the server side of synchronization: it stores chunk
// payloads, keeps the registry's accounting in step with them and
// removes chunks no file references.
//
// Ingest and metadata commits hold gcMu shared; a garbage collection pass
// holds it exclusively, so a chunk cannot be deleted between its upload
// and the commit that references it.
type ChunkDepot struct {
	registry Registry
	store    ObjectStore
	cache    MetadataCache
	pool     *workerpool.Pool
	logger   Logger
	metrics  DepotMetrics
	cfg      DepotConfig

	gcMu sync.RWMutex
}

// NewChunkDepot wires a depot. cache and metrics may be nil.
func NewChunkDepot(registry Registry, store ObjectStore, cache MetadataCache, pool *workerpool.Pool, logger Logger, metrics DepotMetrics, cfg DepotConfig) *ChunkDepot {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.GCBatchSize <= 0 {
		cfg.GCBatchSize = 1000
	}
	return &ChunkDepot{
		registry: registry,
		store:    store,
		cache:    cache,
		pool:     pool,
		logger:   logger.With("component", "depot"),
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Algorithm is the digest algorithm every upload must use.
func (d *ChunkDepot) Algorithm() hasher.Algorithm { return d.cfg.Algorithm }

// IngestBatch stores the new chunks of one file upload and commits the
// file's metadata. Nothing is committed unless every record belongs to
// the declared metadata, the batch digest matches and every payload is
// durably stored.
func (d *ChunkDepot) IngestBatch(ctx context.Context, owner string, req IngestRequest) (*FileRecord, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	if req.Meta == nil {
		return nil, fmt.Errorf("%w: missing metadata", ErrValidation)
	}
	if err := req.Meta.Validate(); err != nil {
		return nil, err
	}
	alg, err := hasher.Parse(req.Algorithm)
	if err != nil || alg != d.cfg.Algorithm {
		return nil, fmt.Errorf("%w: hash algorithm %q, server uses %s", ErrValidation, req.Algorithm, d.cfg.Algorithm)
	}

	d.gcMu.RLock()
	defer d.gcMu.RUnlock()

	written, deduped, storeErr := d.storeRecords(ctx, req)

	// Payloads that reached the store are registered even when the batch
	// is rejected, so garbage collection can reclaim them.
	delta, err := d.registry.RegisterChunks(context.WithoutCancel(ctx), written)
	if storeErr != nil {
		if err != nil {
			d.logger.Error("registering chunks of rejected batch", "path", req.Meta.FilePath, "error", err)
		}
		return nil, storeErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccountingFailure, err)
	}

	rec, err := d.registry.CommitUpload(ctx, owner, req.Meta, delta)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrAccountingFailure, err)
	}

	var bytes int64
	for _, c := range written {
		bytes += c.Size
	}
	d.metrics.ChunksIngested(len(written), deduped, bytes)
	d.refreshCache(ctx, owner, rec)
	d.logger.Info("ingested batch", "owner", owner, "path", rec.Path,
		"chunks", rec.ChunkCount, "new", len(written), "bytes", bytes)
	return rec, nil
}

// storeRecords reads every record of the batch, hands payloads to the
// worker pool and waits for all of them. Puts already started are always
// joined before returning, even on failure, and the chunks that were
// stored are returned alongside any error.
func (d *ChunkDepot) storeRecords(ctx context.Context, req IngestRequest) ([]ChunkRecord, int, error) {
	alg := d.cfg.Algorithm
	declared := req.Meta.HashSet()
	digest := alg.New()
	reader := codec.NewReader(ratelimit.NewReader(ctx, req.Batch, d.cfg.UploadRate))

	var (
		futures []*workerpool.Future[ChunkRecord]
		seen    = make(map[string]bool)
		deduped int
		readErr error
	)
	for {
		payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, codec.ErrRecordTooLarge) {
				readErr = fmt.Errorf("%w: %w", ErrValidation, err)
			} else {
				readErr = fmt.Errorf("%w: reading batch: %w", ErrTransferFailure, err)
			}
			break
		}
		digest.Write(payload)

		h := alg.Hash(payload)
		if _, ok := declared[h]; !ok {
			readErr = fmt.Errorf("%w: chunk %s is not in the metadata of %s", ErrValidation, h, req.Meta.FilePath)
			break
		}
		if seen[h] {
			deduped++
			continue
		}
		seen[h] = true

		futures = append(futures, workerpool.Submit(d.pool, func() (ChunkRecord, error) {
			if err := d.store.Put(ctx, h, payload); err != nil {
				return ChunkRecord{}, fmt.Errorf("storing chunk %s: %w", h, err)
			}
			return ChunkRecord{Hash: h, Size: int64(len(payload))}, nil
		}))
	}

	written := make([]ChunkRecord, 0, len(futures))
	var putErrs []error
	for _, f := range futures {
		rec, err := f.Wait(ctx)
		if err != nil {
			putErrs = append(putErrs, err)
			continue
		}
		written = append(written, rec)
	}

	if readErr != nil {
		return written, 0, readErr
	}
	if got := digest.Sum(); !strings.EqualFold(got, req.BatchDigest) {
		return written, 0, fmt.Errorf("%w: batch digest %s, computed %s", ErrIntegrityMismatch, req.BatchDigest, got)
	}
	if len(putErrs) > 0 {
		return written, 0, errors.Join(putErrs...)
	}
	return written, deduped, nil
}

// FetchBatch writes one framed record per hash to w, in request order.
// Unknown hashes fail the request before anything is written.
func (d *ChunkDepot) FetchBatch(ctx context.Context, hashes []string, w io.Writer) error {
	missing, err := d.registry.MissingChunks(ctx, hashes)
	if err != nil {
		return fmt.Errorf("checking requested chunks: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %d of %d requested chunks, first %s", ErrNotFound, len(missing), len(hashes), missing[0])
	}

	out := codec.NewWriter(ratelimit.NewWriter(ctx, w, d.cfg.FetchRate))
	pending := make([]*workerpool.Future[[]byte], 0, fetchWindow)
	next := 0
	for i := range hashes {
		for next < len(hashes) && next-i < fetchWindow {
			h := hashes[next]
			pending = append(pending, workerpool.Submit(d.pool, func() ([]byte, error) {
				return d.store.Get(ctx, h)
			}))
			next++
		}
		payload, err := pending[0].Wait(ctx)
		pending = pending[1:]
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				return fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			return fmt.Errorf("reading chunk %s: %w", hashes[i], err)
		}
		if err := out.WriteRecord(payload); err != nil {
			return fmt.Errorf("%w: writing chunk %s: %w", ErrTransferFailure, hashes[i], err)
		}
	}
	d.logger.Debug("served batch", "chunks", out.Records(), "bytes", out.Size())
	return nil
}

// FetchChunk returns one stored payload.
func (d *ChunkDepot) FetchChunk(ctx context.Context, hash string) ([]byte, error) {
	data, err := d.store.Get(ctx, hash)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, hash)
	}
	return data, err
}

// MissingChunks returns the hashes the registry does not hold.
func (d *ChunkDepot) MissingChunks(ctx context.Context, hashes []string) ([]string, error) {
	return d.registry.MissingChunks(ctx, hashes)
}

// FetchMetadata returns nil, nil when owner has no record at path.
func (d *ChunkDepot) FetchMetadata(ctx context.Context, owner, path string) (*FileRecord, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	key := CacheKey(owner, path)
	if d.cache != nil {
		rec, err := d.cache.Get(ctx, key)
		if err != nil {
			d.logger.Warn("metadata cache read failed", "key", key, "error", err)
		} else if rec != nil {
			return rec, nil
		}
	}
	rec, err := d.registry.FindFile(ctx, owner, path)
	if err != nil || rec == nil {
		return nil, err
	}
	d.refreshCache(ctx, owner, rec)
	return rec, nil
}

// UpsertMetadata commits metadata whose chunks are all already stored.
func (d *ChunkDepot) UpsertMetadata(ctx context.Context, owner string, meta *Metadata) (*FileRecord, error) {
	if owner == "" {
		return nil, ErrUnauthenticated
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	d.gcMu.RLock()
	defer d.gcMu.RUnlock()

	rec, err := d.registry.CommitUpload(ctx, owner, meta, 0)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrAccountingFailure, err)
	}
	d.refreshCache(ctx, owner, rec)
	return rec, nil
}

// DeleteMetadata removes the record and its references. The cache entry
// is dropped before returning; chunks are left for garbage collection.
func (d *ChunkDepot) DeleteMetadata(ctx context.Context, owner, path string) (bool, error) {
	if owner == "" {
		return false, ErrUnauthenticated
	}
	existed, err := d.registry.DeleteFile(ctx, owner, path)
	if err != nil {
		return false, err
	}
	if d.cache != nil {
		if err := d.cache.Delete(ctx, CacheKey(owner, path)); err != nil {
			return existed, fmt.Errorf("invalidating cached metadata: %w", err)
		}
	}
	if existed {
		d.logger.Info("deleted file record", "owner", owner, "path", path)
	}
	return existed, nil
}

func (d *ChunkDepot) refreshCache(ctx context.Context, owner string, rec *FileRecord) {
	if d.cache == nil || d.cfg.CacheTTL <= 0 {
		return
	}
	key := CacheKey(owner, rec.Path)
	if err := d.cache.Set(ctx, key, rec, d.cfg.CacheTTL); err != nil {
		d.logger.Warn("metadata cache write failed", "key", key, "error", err)
	}
}

// CollectGarbage deletes unreferenced chunks in batches. Payloads are
// removed from the object store first; if any removal in a batch fails,
// that batch's registry rows are kept and the pass stops with
// ErrStorageDeletion so the next pass retries.
func (d *ChunkDepot) CollectGarbage(ctx context.Context) (GCReport, error) {
	d.gcMu.Lock()
	defer d.gcMu.Unlock()

	var report GCReport
	err := d.collect(ctx, &report)
	d.metrics.GarbageCollected(report.Deleted, report.BytesFreed, err)
	if err != nil {
		d.logger.Error("garbage collection failed", "scanned", report.Scanned, "deleted", report.Deleted, "error", err)
		return report, err
	}
	if report.Scanned > 0 {
		d.logger.Info("garbage collection finished", "deleted", report.Deleted, "bytes", report.BytesFreed)
	}
	return report, nil
}

func (d *ChunkDepot) collect(ctx context.Context, report *GCReport) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		orphans, err := d.registry.ListOrphanChunks(ctx, d.cfg.GCBatchSize)
		if err != nil {
			return fmt.Errorf("listing orphan chunks: %w", err)
		}
		if len(orphans) == 0 {
			return nil
		}
		report.Scanned += len(orphans)

		names := make([]string, len(orphans))
		for i, c := range orphans {
			names[i] = c.Hash
		}
		if failed := d.store.DeleteMany(ctx, names); len(failed) > 0 {
			for name, err := range failed {
				d.logger.Warn("failed to delete chunk object", "hash", name, "error", err)
			}
			return fmt.Errorf("%w: %d of %d objects", ErrStorageDeletion, len(failed), len(names))
		}

		n, err := d.registry.DeleteChunks(ctx, names)
		if err != nil {
			return fmt.Errorf("removing chunk rows: %w", err)
		}
		report.Deleted += int(n)
		for _, c := range orphans {
			report.BytesFreed += c.Size
		}
		if n == 0 || len(orphans) < d.cfg.GCBatchSize {
			return nil
		}
	}
}

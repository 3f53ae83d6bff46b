package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"xsync-go/internal/database/migrations"
	"xsync-go/internal/database/sqlc"
	"xsync-go/internal/xsync"
)

// SQLiteRegistry implements xsync.Registry on SQLite.
type SQLiteRegistry struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
	clock   xsync.Clock
	ids     xsync.IDGenerator
}

var _ xsync.Registry = (*SQLiteRegistry)(nil)

// NewSQLiteRegistry opens the database at path (or ":memory:"). Nil clock
// and ids fall back to the real implementations.
func NewSQLiteRegistry(path string, clock xsync.Clock, ids xsync.IDGenerator) (*SQLiteRegistry, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	r := NewSQLiteRegistryFromDB(db, clock, ids)
	r.path = path
	return r, nil
}

// NewSQLiteRegistryFromDB wraps an open connection.
func NewSQLiteRegistryFromDB(db *sql.DB, clock xsync.Clock, ids xsync.IDGenerator) *SQLiteRegistry {
	if clock == nil {
		clock = xsync.RealClock{}
	}
	if ids == nil {
		ids = xsync.UUIDGenerator{}
	}
	return &SQLiteRegistry{db: db, queries: sqlc.New(db), clock: clock, ids: ids}
}

// OpenConnection opens a SQLite connection with foreign keys enforced.
// The pool is limited to one connection: SQLite has a single writer, and
// an in-memory database exists per connection.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

func (r *SQLiteRegistry) RegisterChunks(ctx context.Context, chunks []xsync.ChunkRecord) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	qtx := r.queries.WithTx(tx)
	now := r.clock.Now()

	// A re-registered chunk whose stored size changed contributes the
	// difference to the file's total size.
	var delta int64
	for _, c := range chunks {
		existing, err := qtx.GetChunk(ctx, c.Hash)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return 0, fmt.Errorf("looking up chunk %s: %w", c.Hash, err)
		default:
			delta += c.Size - existing.Size
		}
		if err := qtx.UpsertChunk(ctx, sqlc.UpsertChunkParams{
			Hash:      c.Hash,
			Size:      c.Size,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return 0, fmt.Errorf("upserting chunk %s: %w", c.Hash, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing chunks: %w", err)
	}
	return delta, nil
}

func (r *SQLiteRegistry) CommitUpload(ctx context.Context, owner string, meta *xsync.Metadata, sizeDelta int64) (*xsync.FileRecord, error) {
	hashes, err := json.Marshal(meta.ChunkHashes)
	if err != nil {
		return nil, fmt.Errorf("encoding chunk hashes: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	qtx := r.queries.WithTx(tx)
	now := r.clock.Now()

	checked := make(map[string]bool, len(meta.ChunkHashes))
	for _, h := range meta.ChunkHashes {
		if checked[h] {
			continue
		}
		checked[h] = true
		n, err := qtx.ChunkExists(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("checking chunk %s: %w", h, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: chunk %s is not stored", xsync.ErrValidation, h)
		}
	}

	file, err := qtx.UpsertFile(ctx, sqlc.UpsertFileParams{
		ID:               r.ids.New(),
		Owner:            owner,
		Path:             meta.FilePath,
		LastModifiedTime: meta.LastModifiedTime,
		ChunkCount:       int64(meta.ChunkCount),
		TotalSize:        meta.FileSize + sizeDelta,
		FileHash:         meta.FileHash,
		ChunkHashes:      string(hashes),
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting file: %w", err)
	}

	// Each distinct hash is indexed at its first position. Repeat
	// positions hold no row, so stale rows there are cleared.
	first := make(map[string]bool, len(meta.ChunkHashes))
	for i, h := range meta.ChunkHashes {
		if first[h] {
			if err := qtx.DeleteFileChunk(ctx, sqlc.DeleteFileChunkParams{FileID: file.ID, Ordinal: int64(i)}); err != nil {
				return nil, fmt.Errorf("clearing ordinal %d: %w", i, err)
			}
			continue
		}
		first[h] = true
		if err := qtx.UpsertFileChunk(ctx, sqlc.UpsertFileChunkParams{
			FileID:    file.ID,
			Ordinal:   int64(i),
			ChunkHash: h,
		}); err != nil {
			return nil, fmt.Errorf("indexing chunk %d: %w", i, err)
		}
	}
	if err := qtx.DeleteFileChunksFrom(ctx, sqlc.DeleteFileChunksFromParams{
		FileID:  file.ID,
		Ordinal: int64(meta.ChunkCount),
	}); err != nil {
		return nil, fmt.Errorf("trimming stale ordinals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return toFileRecord(file)
}

func (r *SQLiteRegistry) FindFile(ctx context.Context, owner, path string) (*xsync.FileRecord, error) {
	file, err := r.queries.GetFileByOwnerAndPath(ctx, sqlc.GetFileByOwnerAndPathParams{Owner: owner, Path: path})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return toFileRecord(file)
}

func (r *SQLiteRegistry) DeleteFile(ctx context.Context, owner, path string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	qtx := r.queries.WithTx(tx)

	file, err := qtx.GetFileByOwnerAndPath(ctx, sqlc.GetFileByOwnerAndPathParams{Owner: owner, Path: path})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("finding file: %w", err)
	}
	if err := qtx.DeleteFileChunksFrom(ctx, sqlc.DeleteFileChunksFromParams{FileID: file.ID, Ordinal: 0}); err != nil {
		return false, fmt.Errorf("deleting chunk references: %w", err)
	}
	n, err := qtx.DeleteFileByOwnerAndPath(ctx, sqlc.DeleteFileByOwnerAndPathParams{Owner: owner, Path: path})
	if err != nil {
		return false, fmt.Errorf("deleting file: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRegistry) MissingChunks(ctx context.Context, hashes []string) ([]string, error) {
	missing := []string{}
	for _, h := range hashes {
		n, err := r.queries.ChunkExists(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("checking chunk %s: %w", h, err)
		}
		if n == 0 {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

func (r *SQLiteRegistry) ListOrphanChunks(ctx context.Context, limit int) ([]xsync.ChunkRecord, error) {
	rows, err := r.queries.ListOrphanChunks(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing orphan chunks: %w", err)
	}
	out := make([]xsync.ChunkRecord, len(rows))
	for i, c := range rows {
		out[i] = xsync.ChunkRecord{Hash: c.Hash, Size: c.Size}
	}
	return out, nil
}

func (r *SQLiteRegistry) DeleteChunks(ctx context.Context, hashes []string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	qtx := r.queries.WithTx(tx)

	var total int64
	for _, h := range hashes {
		n, err := qtx.DeleteOrphanChunk(ctx, h)
		if err != nil {
			return 0, fmt.Errorf("deleting chunk %s: %w", h, err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return total, nil
}

func (r *SQLiteRegistry) CreateUser(ctx context.Context, email, passwordHash string) error {
	err := r.queries.InsertUser(ctx, sqlc.InsertUserParams{
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    r.clock.Now(),
	})
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("user %s: %w", email, xsync.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) FindUser(ctx context.Context, email string) (*xsync.User, error) {
	u, err := r.queries.GetUser(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &xsync.User{Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt}, nil
}

// Stats returns the registered chunk count and their summed stored size.
func (r *SQLiteRegistry) Stats(ctx context.Context) (chunks, bytes int64, err error) {
	row, err := r.queries.GetChunkStats(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reading chunk stats: %w", err)
	}
	return row.ChunkCount, row.TotalSize, nil
}

// FileChunkOrdinals returns the reference index for a file as
// ordinal -> hash. Used by integrity tooling and tests.
func (r *SQLiteRegistry) FileChunkOrdinals(ctx context.Context, fileID string) (map[int]string, error) {
	rows, err := r.queries.ListFileChunks(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing file chunks: %w", err)
	}
	out := make(map[int]string, len(rows))
	for _, fc := range rows {
		out[int(fc.Ordinal)] = fc.ChunkHash
	}
	return out, nil
}

// Ping checks the database connection.
func (r *SQLiteRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRegistry) Path() string {
	return r.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (r *SQLiteRegistry) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(r.db)
}

// Migrate applies pending migrations.
func (r *SQLiteRegistry) Migrate() error {
	return migrations.MigrateUp(r.db)
}

// BackupTo writes a consistent copy of the database to destPath.
func (r *SQLiteRegistry) BackupTo(destPath string) error {
	if _, err := r.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func toFileRecord(f sqlc.File) (*xsync.FileRecord, error) {
	var hashes []string
	if err := json.Unmarshal([]byte(f.ChunkHashes), &hashes); err != nil {
		return nil, fmt.Errorf("decoding chunk hashes of %s: %w", f.Path, err)
	}
	if hashes == nil {
		hashes = []string{}
	}
	return &xsync.FileRecord{
		ID:               f.ID,
		Owner:            f.Owner,
		Path:             f.Path,
		LastModifiedTime: f.LastModifiedTime,
		ChunkCount:       int(f.ChunkCount),
		TotalSize:        f.TotalSize,
		FileHash:         f.FileHash,
		ChunkHashes:      hashes,
		UpdatedAt:        f.UpdatedAt,
	}, nil
}

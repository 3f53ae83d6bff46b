// Package chunkcache is the client's local content-addressed chunk cache
// and the backup area used while a file is being rebuilt.
package chunkcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrNotCached is returned by Get for a hash the cache does not hold.
var ErrNotCached = errors.New("chunk not cached")

// Cache stores chunk payloads under <dir>/chunks/<ab>/<hash>, backups
// under <dir>/backups and upload scratch files under <dir>/tmp.
type Cache struct {
	fs  afero.Fs
	dir string
}

func New(fsys afero.Fs, dir string) (*Cache, error) {
	for _, sub := range []string{"chunks", "backups", "tmp"} {
		if err := fsys.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return nil, fmt.Errorf("failed to create chunk cache %s: %w", sub, err)
		}
	}
	return &Cache{fs: fsys, dir: dir}, nil
}

func (c *Cache) Dir() string { return c.dir }

// TempFile creates a scratch file under <dir>/tmp. The returned func
// closes and removes it.
func (c *Cache) TempFile(pattern string) (afero.File, func(), error) {
	f, err := afero.TempFile(c.fs, filepath.Join(c.dir, "tmp"), pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("creating scratch file: %w", err)
	}
	return f, func() {
		f.Close()
		c.fs.Remove(f.Name())
	}, nil
}

func (c *Cache) chunkPath(hash string) (string, error) {
	if len(hash) < 2 || filepath.Base(hash) != hash {
		return "", fmt.Errorf("invalid chunk hash %q", hash)
	}
	return filepath.Join(c.dir, "chunks", hash[:2], hash), nil
}

func (c *Cache) Has(hash string) bool {
	p, err := c.chunkPath(hash)
	if err != nil {
		return false
	}
	_, err = c.fs.Stat(p)
	return err == nil
}

// Put stores data under hash unless it is already cached.
func (c *Cache) Put(hash string, data []byte) error {
	p, err := c.chunkPath(hash)
	if err != nil {
		return err
	}
	if _, err := c.fs.Stat(p); err == nil {
		return nil
	}
	if err := c.fs.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return fmt.Errorf("failed to create cache shard: %w", err)
	}
	return writeFileAtomic(c.fs, p, data)
}

func (c *Cache) Get(hash string) ([]byte, error) {
	p, err := c.chunkPath(hash)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(c.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached chunk %s: %w", hash, err)
	}
	return data, nil
}

func (c *Cache) Remove(hash string) error {
	p, err := c.chunkPath(hash)
	if err != nil {
		return err
	}
	if err := c.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing cached chunk %s: %w", hash, err)
	}
	return nil
}

// Backup is a file moved aside while its replacement is built.
type Backup struct {
	fs       afero.Fs
	original string
	path     string
	done     bool
}

// Path is where the backup currently lives.
func (b *Backup) Path() string { return b.path }

// Backup moves the file at path into the backup area. The backup name is
// the file's base name plus a digest of its full path, so files with the
// same name in different directories do not collide.
func (c *Cache) Backup(path string) (*Backup, error) {
	sum := sha256.Sum256([]byte(path))
	name := fmt.Sprintf("%s.%s.backup", filepath.Base(path), hex.EncodeToString(sum[:4]))
	dest := filepath.Join(c.dir, "backups", name)

	if err := c.fs.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("clearing stale backup: %w", err)
	}
	if err := moveFile(c.fs, path, dest); err != nil {
		return nil, fmt.Errorf("backing up %s: %w", path, err)
	}
	return &Backup{fs: c.fs, original: path, path: dest}, nil
}

// Restore moves the backup back over the original path, replacing
// whatever is there.
func (b *Backup) Restore() error {
	if b.done {
		return nil
	}
	if err := b.fs.Remove(b.original); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing partial file %s: %w", b.original, err)
	}
	if err := moveFile(b.fs, b.path, b.original); err != nil {
		return fmt.Errorf("restoring %s from backup: %w", b.original, err)
	}
	b.done = true
	return nil
}

// Discard deletes the backup once the replacement is verified.
func (b *Backup) Discard() error {
	if b.done {
		return nil
	}
	if err := b.fs.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing backup %s: %w", b.path, err)
	}
	b.done = true
	return nil
}

// moveFile renames src to dest, falling back to copy and remove when the
// two are on different devices.
func moveFile(fsys afero.Fs, src, dest string) error {
	if err := fsys.Rename(src, dest); err == nil {
		return nil
	}
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := fsys.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		fsys.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		fsys.Remove(dest)
		return err
	}
	_ = fsys.Chtimes(dest, info.ModTime(), info.ModTime())
	in.Close()
	return fsys.Remove(src)
}

func writeFileAtomic(fsys afero.Fs, dest string, data []byte) error {
	tmp, err := afero.TempFile(fsys, filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			fsys.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fsys.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Package fs confines client file access to the configured sync root.
package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"xsync-go/internal/xsync"
)

// Root resolves paths against a sync root on an afero filesystem. Files
// matched by ignore, and anything under a skip directory, are left out of
// directory listings.
type Root struct {
	fs     afero.Fs
	root   string
	ignore *IgnoreMatcher
	skip   []string
}

var _ xsync.LocalFS = (*Root)(nil)

// NewRoot requires root to be an existing directory.
func NewRoot(fsys afero.Fs, root string, ignore *IgnoreMatcher, skip ...string) (*Root, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving sync root: %w", err)
	}
	info, err := fsys.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: sync root %s: %w", xsync.ErrConfiguration, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: sync root %s is not a directory", xsync.ErrConfiguration, abs)
	}
	var cleaned []string
	for _, d := range skip {
		if d == "" {
			continue
		}
		if a, err := filepath.Abs(d); err == nil {
			cleaned = append(cleaned, a)
		}
	}
	return &Root{fs: fsys, root: abs, ignore: ignore, skip: cleaned}, nil
}

func (r *Root) Dir() string  { return r.root }
func (r *Root) Fs() afero.Fs { return r.fs }

// Open builds a Root whose ignore patterns come from ignoreFile inside
// root, when that file exists.
func Open(fsys afero.Fs, root, ignoreFile string, skip ...string) (*Root, error) {
	var patterns []string
	if ignoreFile != "" {
		var err error
		patterns, err = ParseIgnoreFile(fsys, filepath.Join(root, ignoreFile))
		if err != nil {
			return nil, err
		}
	}
	return NewRoot(fsys, root, NewIgnoreMatcher(patterns), skip...)
}

// Resolve canonicalizes raw and requires it to lie within the root.
// Relative paths are taken relative to the root. The target need not
// exist, but if it does it must not be a symlink or special file, and no
// existing directory between the root and the target may be a symlink.
func (r *Root) Resolve(raw string) (*xsync.Path, error) {
	p := raw
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(r.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", xsync.ErrPathViolation, raw)
	}

	if err := r.checkAncestors(rel); err != nil {
		return nil, err
	}

	info, err := r.lstat(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("stat path: %w", err)
	default:
		mode := info.Mode()
		if mode&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("%w: symlinks not supported: %s", xsync.ErrPathViolation, p)
		}
		if !mode.IsRegular() && !mode.IsDir() {
			return nil, fmt.Errorf("special files not supported: %s", p)
		}
	}
	return &xsync.Path{Abs: p, Rel: filepath.ToSlash(rel)}, nil
}

// checkAncestors lstats each existing parent of rel below the root. A
// symlinked parent could point outside the root, so it is a violation.
func (r *Root) checkAncestors(rel string) error {
	if rel == "." {
		return nil
	}
	parts := strings.Split(rel, string(filepath.Separator))
	dir := r.root
	for _, part := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, part)
		info, err := r.lstat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stat path: %w", err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: symlinked directory %s", xsync.ErrPathViolation, dir)
		}
		if !info.IsDir() {
			return nil
		}
	}
	return nil
}

// FromRel resolves a server-side relative path.
func (r *Root) FromRel(rel string) (*xsync.Path, error) {
	if filepath.IsAbs(filepath.FromSlash(rel)) {
		return nil, fmt.Errorf("%w: %s is absolute", xsync.ErrPathViolation, rel)
	}
	return r.Resolve(filepath.FromSlash(rel))
}

func (r *Root) lstat(p string) (fs.FileInfo, error) {
	if l, ok := r.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(p)
		return info, err
	}
	return r.fs.Stat(p)
}

// Stat returns nil, nil when the file does not exist.
func (r *Root) Stat(p *xsync.Path) (fs.FileInfo, error) {
	info, err := r.fs.Stat(p.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p.Rel, err)
	}
	return info, nil
}

// FindFiles returns the regular files under dir, in lexical order.
// Ignored directories and skip directories are not descended into.
func (r *Root) FindFiles(dir *xsync.Path, recursive bool) ([]*xsync.Path, error) {
	var out []*xsync.Path
	err := afero.Walk(r.fs, dir.Abs, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p == dir.Abs {
				return nil
			}
			if !recursive || r.ignore.Match(rel) || containsDir(r.skip, p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || r.ignore.Match(rel) {
			return nil
		}
		out = append(out, &xsync.Path{Abs: p, Rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return out, nil
}

func containsDir(dirs []string, p string) bool {
	for _, d := range dirs {
		if d == p {
			return true
		}
	}
	return false
}

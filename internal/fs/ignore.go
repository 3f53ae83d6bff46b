package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"xsync-go/internal/xsync"
)

// defaultIgnorePatterns are always applied regardless of the ignore file.
var defaultIgnorePatterns = []string{".xsyncignore", "*" + xsync.PartialSuffix}

type ignorePattern struct {
	pattern   string
	matchPath bool // match the whole relative path rather than one component
}

// IgnoreMatcher checks relative paths against ignore patterns.
// Patterns without '/' match any single path component, so "build"
// ignores a build directory at any depth. Patterns containing '/' match
// the relative path from the root, or any leading part of it. A trailing
// '/' is dropped.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings plus
// the defaults. Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range append(append([]string(nil), defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimPrefix(strings.TrimSuffix(raw, "/"), "/")
		if raw == "" {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether relativePath should be ignored. A nil matcher
// matches nothing.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if m == nil || relativePath == "" {
		return false
	}
	normalized := filepath.ToSlash(relativePath)
	parts := strings.Split(normalized, "/")

	for _, p := range m.patterns {
		if p.matchPath {
			for i := range parts {
				// Bad patterns never match.
				if ok, _ := filepath.Match(p.pattern, strings.Join(parts[:i+1], "/")); ok {
					return true
				}
			}
			continue
		}
		for _, part := range parts {
			if ok, _ := filepath.Match(p.pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

package fs

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		if len(m.patterns) != len(defaultIgnorePatterns)+1 {
			t.Fatalf("expected %d patterns, got %d", len(defaultIgnorePatterns)+1, len(m.patterns))
		}
		if last := m.patterns[len(m.patterns)-1].pattern; last != "*.log" {
			t.Errorf("expected *.log, got %s", last)
		}
	})

	t.Run("classifies path vs component patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.log", "build/output", "dist/"})
		n := len(defaultIgnorePatterns)
		if m.patterns[n].matchPath {
			t.Error("*.log should not be a path pattern")
		}
		if !m.patterns[n+1].matchPath {
			t.Error("build/output should be a path pattern")
		}
		if m.patterns[n+2].pattern != "dist" || m.patterns[n+2].matchPath {
			t.Errorf("dist/ parsed as %+v", m.patterns[n+2])
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"glob matches file in root", []string{"*.log"}, "app.log", true},
		{"glob matches file in subdirectory", []string{"*.log"}, "sub/app.log", true},
		{"glob does not match different extension", []string{"*.log"}, "app.txt", false},
		{"ignore file itself is always ignored", nil, ".xsyncignore", true},
		{"partial downloads are always ignored", nil, "docs/report.pdf.xsync-part", true},
		{"component pattern ignores directory contents", []string{"node_modules"}, "web/node_modules/x/index.js", true},
		{"trailing slash pattern", []string{"dist/"}, "dist/app.js", true},
		{"path pattern matches exact relative path", []string{"build/output"}, "build/output", true},
		{"path pattern matches files below it", []string{"build/output"}, "build/output/a.bin", true},
		{"path pattern does not match wrong path", []string{"build/output"}, "src/output", false},
		{"path pattern with glob", []string{"build/*.o"}, "build/main.o", true},
		{"native separators", []string{"build/*.o"}, filepath.Join("build", "main.o"), true},
		{"question mark wildcard", []string{"?.txt"}, "a.txt", true},
		{"question mark does not match multiple chars", []string{"?.txt"}, "ab.txt", false},
		{"character class", []string{"*.[oa]"}, "main.o", true},
		{"no patterns matches ordinary file", nil, "anything.txt", false},
		{"empty string path", []string{"*.log"}, "", false},
		{"bad pattern never matches", []string{"[", "*.tmp"}, "data.tmp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}

	t.Run("nil matcher", func(t *testing.T) {
		var m *IgnoreMatcher
		if m.Match("a.log") {
			t.Error("nil matcher matched")
		}
	})
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		fsys := afero.NewMemMapFs()
		content := "*.log\n# comment\n\n*.tmp\nbuild/output\n"
		if err := afero.WriteFile(fsys, "/root/.xsyncignore", []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(fsys, "/root/.xsyncignore")
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(patterns) != 5 { // raw lines; filtering is NewIgnoreMatcher's job
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}
		m := NewIgnoreMatcher(patterns)
		if got := len(m.patterns) - len(defaultIgnorePatterns); got != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", got)
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(afero.NewMemMapFs(), "/nonexistent/.xsyncignore")
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}

package remote

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"xsync-go/internal/xsync"
)

// CredentialFile is the name of the token file inside the cache dir.
const CredentialFile = "credential"

// SaveToken writes token to dir/credential, readable only by the owner.
func SaveToken(dir, token string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, CredentialFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing credential: %w", err)
	}
	return nil
}

// LoadToken reads the token saved by SaveToken. A missing file is
// ErrUnauthenticated: the user has to log in.
func LoadToken(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, CredentialFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: not logged in, run `xsync login`", xsync.ErrUnauthenticated)
	}
	if err != nil {
		return "", fmt.Errorf("reading credential: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("%w: credential file is empty", xsync.ErrUnauthenticated)
	}
	return token, nil
}

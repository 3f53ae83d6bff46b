// Package encryption manages the secret-key artifact that chunk
// encryption derives its keys from. The artifact is a random master
// secret sealed with age's scrypt passphrase encryption.
package encryption

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"xsync-go/internal/transform"
)

// ErrNotConfigured is returned by Unlock when no key file exists.
var ErrNotConfigured = errors.New("encryption key not set up")

// KeyFile is a passphrase-protected master secret on disk.
type KeyFile struct {
	path       string
	workFactor int // scrypt log2 N; zero uses age's default
}

func NewKeyFile(path string) *KeyFile {
	return &KeyFile{path: path}
}

// SetWorkFactor overrides the scrypt cost used by Setup and accepted by
// Unlock. Lower values make tests fast.
func (k *KeyFile) SetWorkFactor(logN int) { k.workFactor = logN }

func (k *KeyFile) Path() string { return k.path }

// IsConfigured reports whether the key file exists.
func (k *KeyFile) IsConfigured() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// Setup creates a new master secret and seals it under passphrase. It
// refuses to overwrite an existing key, since doing so would orphan every
// chunk encrypted with it.
func (k *KeyFile) Setup(passphrase string) error {
	if k.IsConfigured() {
		return fmt.Errorf("key file %s already exists", k.path)
	}
	master := make([]byte, transform.MasterKeySize)
	if _, err := rand.Read(master); err != nil {
		return fmt.Errorf("generating master key: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if k.workFactor > 0 {
		recipient.SetWorkFactor(k.workFactor)
	}

	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(master); err != nil {
		return fmt.Errorf("writing encrypted key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	tmp := k.path + ".tmp"
	if err := os.WriteFile(tmp, sealed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := os.Rename(tmp, k.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("installing key file: %w", err)
	}
	return nil
}

// Unlock opens the key file with passphrase and returns the chunk cipher.
func (k *KeyFile) Unlock(passphrase string) (*transform.Cipher, error) {
	data, err := os.ReadFile(k.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, k.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting key file: %w", err)
	}
	master, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key: %w", err)
	}
	return transform.NewCipher(master)
}

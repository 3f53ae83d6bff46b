package encryption

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func newTestKeyFile(t *testing.T) *KeyFile {
	t.Helper()
	k := NewKeyFile(filepath.Join(t.TempDir(), "keys", "xsync.key"))
	k.SetWorkFactor(10)
	return k
}

func TestKeyFile_IsConfigured(t *testing.T) {
	t.Parallel()
	k := newTestKeyFile(t)
	if k.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
	if err := k.Setup("pass"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !k.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestKeyFile_UnlockRoundTrip(t *testing.T) {
	t.Parallel()
	k := newTestKeyFile(t)
	if err := k.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	first, err := k.Unlock("correct horse")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	second, err := k.Unlock("correct horse")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	// Both unlocks must derive the same keys.
	sealed, err := first.Forward([]byte("chunk"))
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	plain, err := second.Inverse(sealed)
	if err != nil {
		t.Fatalf("Inverse() error = %v", err)
	}
	if !bytes.Equal(plain, []byte("chunk")) {
		t.Errorf("Inverse() = %q, want %q", plain, "chunk")
	}
}

func TestKeyFile_WrongPassphrase(t *testing.T) {
	t.Parallel()
	k := newTestKeyFile(t)
	if err := k.Setup("right"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := k.Unlock("wrong"); err == nil {
		t.Error("Unlock() with wrong passphrase succeeded")
	}
}

func TestKeyFile_UnlockWithoutSetup(t *testing.T) {
	t.Parallel()
	k := newTestKeyFile(t)
	if _, err := k.Unlock("anything"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Unlock() error = %v, want ErrNotConfigured", err)
	}
}

func TestKeyFile_SetupRefusesOverwrite(t *testing.T) {
	t.Parallel()
	k := newTestKeyFile(t)
	if err := k.Setup("one"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := k.Setup("two"); err == nil {
		t.Error("second Setup() succeeded, want error")
	}
	if _, err := k.Unlock("one"); err != nil {
		t.Errorf("original key no longer unlocks: %v", err)
	}
}

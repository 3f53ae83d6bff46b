package transform

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MasterKeySize is the length of the secret the cipher keys derive from.
const MasterKeySize = 32

const encryptionVersion byte = 1

var (
	hkdfInfoEncryption = []byte("xsync.chunk.enc.v1")
	hkdfInfoNonce      = []byte("xsync.chunk.nonce.v1")
)

// ErrDecrypt is returned for payloads that fail authentication.
var ErrDecrypt = errors.New("chunk decryption failed")

// Cipher is a convergent encryption stage: the nonce is a keyed hash of
// the plaintext, so equal plaintexts under one master key produce equal
// ciphertexts and still deduplicate. Output is
// [version][24-byte nonce][ciphertext+tag].
type Cipher struct {
	encKey   []byte
	nonceKey []byte
}

// NewCipher derives the stage keys from a master secret.
func NewCipher(master []byte) (*Cipher, error) {
	if len(master) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(master))
	}
	encKey, err := deriveKey(master, hkdfInfoEncryption)
	if err != nil {
		return nil, err
	}
	nonceKey, err := deriveKey(master, hkdfInfoNonce)
	if err != nil {
		return nil, err
	}
	return &Cipher{encKey: encKey, nonceKey: nonceKey}, nil
}

func deriveKey(master, info []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, info), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

func (c *Cipher) Name() string { return "encrypt" }

func (c *Cipher) Forward(p []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.encKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	h, err := blake3.NewKeyed(c.nonceKey)
	if err != nil {
		return nil, fmt.Errorf("creating nonce hash: %w", err)
	}
	h.Write(p)
	sum := h.Sum(nil)

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(p)+aead.Overhead())
	out[0] = encryptionVersion
	nonce := out[1 : 1+chacha20poly1305.NonceSizeX]
	copy(nonce, sum)
	return aead.Seal(out, nonce, p, out[:1]), nil
}

func (c *Cipher) Inverse(p []byte) ([]byte, error) {
	if len(p) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: payload too short (%d bytes)", ErrDecrypt, len(p))
	}
	if p[0] != encryptionVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecrypt, p[0])
	}
	aead, err := chacha20poly1305.NewX(c.encKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	nonce := p[1 : 1+chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, p[1+chacha20poly1305.NonceSizeX:], p[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return plain, nil
}

package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
)

// SHA256Hex returns the SHA-256 digest of data as lowercase hex, the
// default chunk and file digest format.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// RandomBytes returns n pseudo-random bytes that depend only on seed, so
// chunk boundaries in tests are reproducible.
func RandomBytes(seed uint64, n int) []byte {
	var key [32]byte
	for i := range 8 {
		key[i] = byte(seed >> (8 * i))
	}
	buf := make([]byte, n)
	_, _ = rand.NewChaCha8(key).Read(buf)
	return buf
}

// Package sha256 provides SHA-256 hashing utilities for record keys and
// archived digests.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// keySeparator cannot appear in trimmed upstream text fields.
const keySeparator = "\x1f"

// Hasher implements award.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Key hashes the separator-joined parts into a stable hex identifier.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte(keySeparator))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

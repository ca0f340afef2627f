// Package crypto holds the primitives shared by the pairing and authentication
// protocols: hashing, HMAC, HKDF/PBKDF2, P-256, the tagged AEAD and a bounded
// byte builder for assembling signed transcripts.
package crypto

import (
	"crypto/sha256"
	"hash"
)

// SHA256LenBytes is the SHA-256 digest length.
const SHA256LenBytes = 32

// SHA256 returns the SHA-256 digest of message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// SHA256Slice is SHA256 returning a slice.
func SHA256Slice(message []byte) []byte {
	h := sha256.Sum256(message)
	return h[:]
}

// SHA256Concat hashes the concatenation of parts without building it first.
func SHA256Concat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// NewSHA256 returns an incremental SHA-256 hash.
func NewSHA256() hash.Hash {
	return sha256.New()
}

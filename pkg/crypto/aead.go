package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD framing.
const (
	// AEADNonceSize is the nonce prefix length of a sealed payload.
	AEADNonceSize = chacha20poly1305.NonceSize

	// AEADOverhead is the number of bytes Seal adds to the plaintext.
	AEADOverhead = AEADNonceSize + chacha20poly1305.Overhead
)

var aeadKeyInfo = []byte("hichain_aead_key")

var (
	// ErrAEADOpen is returned when a sealed payload fails authentication.
	ErrAEADOpen = errors.New("crypto: message authentication failed")

	// ErrEmptyKey is returned when the session key is empty.
	ErrEmptyKey = errors.New("crypto: empty key")
)

// SealWithTag encrypts plaintext under a key derived from sessionKey. The
// domain tag is bound as associated data so a payload sealed for one message
// type cannot be opened as another. Output is nonce || ciphertext || tag.
func SealWithTag(rng io.Reader, sessionKey, plaintext []byte, tag string) ([]byte, error) {
	aead, err := newAEAD(sessionKey)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.Reader
	}
	out := make([]byte, AEADNonceSize, AEADNonceSize+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := io.ReadFull(rng, out); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	return aead.Seal(out, out[:AEADNonceSize], plaintext, []byte(tag)), nil
}

// OpenWithTag reverses SealWithTag. A tag mismatch, a wrong key or a modified
// payload all return ErrAEADOpen.
func OpenWithTag(sessionKey, sealed []byte, tag string) ([]byte, error) {
	if len(sealed) < AEADOverhead {
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrAEADOpen, len(sealed))
	}
	aead, err := newAEAD(sessionKey)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, sealed[:AEADNonceSize], sealed[AEADNonceSize:], []byte(tag))
	if err != nil {
		return nil, ErrAEADOpen
	}
	return pt, nil
}

func newAEAD(sessionKey []byte) (cipher.AEAD, error) {
	if len(sessionKey) == 0 {
		return nil, ErrEmptyKey
	}
	key, err := HKDFSHA256(sessionKey, nil, aeadKeyInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)
	return chacha20poly1305.New(key)
}

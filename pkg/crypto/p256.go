package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// P-256 sizes.
const (
	P256ScalarSize    = 32
	P256PublicKeySize = 65 // 0x04 || X || Y
	P256SignatureSize = 64 // r || s
)

// ErrInvalidPublicKey is returned for encodings that are not an uncompressed
// point on P-256.
var ErrInvalidPublicKey = errors.New("crypto: invalid P-256 public key")

// P256KeyPair is a P-256 key usable for both ECDSA and ECDH.
type P256KeyPair struct {
	ecdhPrivate  *ecdh.PrivateKey
	ecdsaPrivate *ecdsa.PrivateKey
}

// PublicKey returns the uncompressed public key.
func (kp *P256KeyPair) PublicKey() []byte {
	return kp.ecdhPrivate.PublicKey().Bytes()
}

// PrivateKey returns the private scalar.
func (kp *P256KeyPair) PrivateKey() []byte {
	return kp.ecdhPrivate.Bytes()
}

// P256GenerateKeyPair generates a fresh key pair.
func P256GenerateKeyPair() (*P256KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return newKeyPair(priv)
}

// P256KeyPairFromPrivateKey rebuilds a key pair from its private scalar.
func P256KeyPairFromPrivateKey(privateKey []byte) (*P256KeyPair, error) {
	if len(privateKey) != P256ScalarSize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", P256ScalarSize, len(privateKey))
	}
	priv, err := ecdh.P256().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return newKeyPair(priv)
}

func newKeyPair(priv *ecdh.PrivateKey) (*P256KeyPair, error) {
	pub := priv.PublicKey().Bytes()
	if len(pub) != P256PublicKeySize || pub[0] != 0x04 {
		return nil, ErrInvalidPublicKey
	}
	sk := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:65]),
		},
		D: new(big.Int).SetBytes(priv.Bytes()),
	}
	return &P256KeyPair{ecdhPrivate: priv, ecdsaPrivate: sk}, nil
}

// P256Sign signs SHA-256(message) and returns the fixed-width r || s encoding.
func P256Sign(keyPair *P256KeyPair, message []byte) ([]byte, error) {
	digest := SHA256(message)
	r, s, err := ecdsa.Sign(rand.Reader, keyPair.ecdsaPrivate, digest[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	sig := make([]byte, P256SignatureSize)
	r.FillBytes(sig[:P256ScalarSize])
	s.FillBytes(sig[P256ScalarSize:])
	return sig, nil
}

// P256Verify checks an r || s signature over message. A well-formed but wrong
// signature returns false with a nil error.
func P256Verify(publicKey, message, signature []byte) (bool, error) {
	pub, err := parsePublicKey(publicKey)
	if err != nil {
		return false, err
	}
	if len(signature) != P256SignatureSize {
		return false, fmt.Errorf("crypto: signature must be %d bytes, got %d", P256SignatureSize, len(signature))
	}
	r := new(big.Int).SetBytes(signature[:P256ScalarSize])
	s := new(big.Int).SetBytes(signature[P256ScalarSize:])
	digest := SHA256(message)
	return ecdsa.Verify(pub, digest[:], r, s), nil
}

// P256ECDH returns the x-coordinate of the shared point.
func P256ECDH(keyPair *P256KeyPair, peerPublicKey []byte) ([]byte, error) {
	if len(peerPublicKey) != P256PublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(peerPublicKey))
	}
	peer, err := ecdh.P256().NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	secret, err := keyPair.ecdhPrivate.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("crypto: ecdh: %w", err)
	}
	return secret, nil
}

// P256ValidatePublicKey checks the encoding and that the point is on the curve.
func P256ValidatePublicKey(publicKey []byte) error {
	_, err := parsePublicKey(publicKey)
	return err
}

func parsePublicKey(publicKey []byte) (*ecdsa.PublicKey, error) {
	if len(publicKey) != P256PublicKeySize || publicKey[0] != 0x04 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(publicKey))
	}
	x := new(big.Int).SetBytes(publicKey[1:33])
	y := new(big.Int).SetBytes(publicKey[33:65])
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, fmt.Errorf("%w: point not on curve", ErrInvalidPublicKey)
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

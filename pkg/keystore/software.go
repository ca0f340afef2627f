package keystore

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/status"
)

// SoftwareConfig configures a Software adapter.
type SoftwareConfig struct {
	// Storage holds the private scalars. Required.
	Storage KeyStorage

	// Rand is the nonce source for Encrypt. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Software is an Adapter that keeps P-256 private scalars in a KeyStorage.
type Software struct {
	mu      sync.Mutex
	storage KeyStorage
	rand    io.Reader
	log     logging.LeveledLogger
}

var _ Adapter = (*Software)(nil)

// NewSoftware creates a software adapter.
func NewSoftware(cfg SoftwareConfig) (*Software, error) {
	if cfg.Storage == nil {
		return nil, errors.New("keystore: storage is required")
	}
	s := &Software{storage: cfg.Storage, rand: cfg.Rand}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("keystore")
	}
	return s, nil
}

// GenerateKeyPair implements Adapter.
func (s *Software) GenerateKeyPair(alias string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.storage.GetKey(alias); err == nil {
		return nil, ErrKeyExists
	} else if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	kp, err := crypto.P256GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	priv := kp.PrivateKey()
	defer crypto.Wipe(priv)
	if err := s.storage.PutKey(alias, priv); err != nil {
		return nil, fmt.Errorf("keystore: store key: %w", err)
	}
	if s.log != nil {
		s.log.Debugf("generated key pair %.16s", alias)
	}
	return kp.PublicKey(), nil
}

// ExportPublicKey implements Adapter.
func (s *Software) ExportPublicKey(alias string) ([]byte, error) {
	kp, err := s.load(alias)
	if err != nil {
		return nil, err
	}
	return kp.PublicKey(), nil
}

// HasKey implements Adapter.
func (s *Software) HasKey(alias string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := s.storage.GetKey(alias)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	crypto.Wipe(priv)
	return true, nil
}

// DeleteKey implements Adapter.
func (s *Software) DeleteKey(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.storage.DeleteKey(alias)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}

// Sign implements Adapter.
func (s *Software) Sign(alias string, data []byte) ([]byte, error) {
	kp, err := s.load(alias)
	if err != nil {
		return nil, err
	}
	return crypto.P256Sign(kp, data)
}

// Verify implements Adapter. Both user types sign with P-256; the type is
// checked so that a record with a corrupt type never verifies.
func (s *Software) Verify(peerType UserType, data, publicKey, signature []byte) error {
	if !peerType.Valid() {
		return fmt.Errorf("%w: unknown peer type %d", status.ErrSignatureInvalid, int(peerType))
	}
	ok, err := crypto.P256Verify(publicKey, data, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrSignatureInvalid, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s signature does not verify", status.ErrSignatureInvalid, peerType)
	}
	return nil
}

// Encrypt implements Adapter.
func (s *Software) Encrypt(sessionKey, data []byte, tag string) ([]byte, error) {
	if len(sessionKey) == 0 {
		return nil, status.ErrSessionKeyMissing
	}
	return crypto.SealWithTag(s.rand, sessionKey, data, tag)
}

// Decrypt implements Adapter.
func (s *Software) Decrypt(sessionKey, data []byte, tag string) ([]byte, error) {
	if len(sessionKey) == 0 {
		return nil, status.ErrSessionKeyMissing
	}
	pt, err := crypto.OpenWithTag(sessionKey, data, tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", status.ErrDecryptFailed, tag)
	}
	return pt, nil
}

func (s *Software) load(alias string) (*crypto.P256KeyPair, error) {
	s.mu.Lock()
	priv, err := s.storage.GetKey(alias)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(priv)
	return crypto.P256KeyPairFromPrivateKey(priv)
}

// Package sts authenticates two devices that are already bound.
//
// Both sides prove possession of the long-term key recorded for them in the
// trust store and agree on a fresh session key through an ephemeral P-256
// key exchange.
//
//	Initiator (centre)                         Responder (accessory)
//	Start()            --17 authData=Sig(chC|epkC|idC)-->      HandleStart()
//	                   <--0x8011 Enc(K, Sig(chA|chC|epkA|epkC|idA))--
//	HandleResponse()   --18 Enc(K, Sig(chC|chA|epkC|epkA|idC))-->  HandleAck()
package sts

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

// AEAD domain tags and key derivation label.
const (
	StartResponseTag = "hichain_auth_start_response"
	AckTag           = "hichain_auth_ack_request"

	sessionKeyInfo = "hichain_auth_session_key"
)

// SessionKeyLength is the minimum and default session key length.
const SessionKeyLength = 32

var (
	// ErrInvalidState is returned when a step is taken out of order.
	ErrInvalidState = errors.New("sts: invalid state")

	// ErrMissingConfig is returned when a required Config field is unset.
	ErrMissingConfig = errors.New("sts: incomplete config")
)

// Config is shared by Initiator and Responder.
type Config struct {
	Keystore keystore.Adapter
	Store    identity.Store

	// GroupID is the trust group both devices are bound in.
	GroupID string

	SelfAuthID   []byte
	SelfUserType keystore.UserType

	// PeerAuthID names the device the initiator authenticates. Ignored by
	// the responder, which learns it from the start message.
	PeerAuthID []byte

	// KeyLength is the session key length. Zero means SessionKeyLength.
	KeyLength int

	// Versions is the supported version range. Zero means
	// message.DefaultVersionRange().
	Versions message.VersionRange

	OperationCode int

	// Rand defaults to crypto/rand.
	Rand io.Reader
}

func (c *Config) validate() error {
	if c.Keystore == nil || c.Store == nil || c.GroupID == "" || len(c.SelfAuthID) == 0 {
		return ErrMissingConfig
	}
	if c.KeyLength == 0 {
		c.KeyLength = SessionKeyLength
	}
	if c.Versions == (message.VersionRange{}) {
		c.Versions = message.DefaultVersionRange()
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	return nil
}

// DeriveSessionKey returns HKDF-SHA256(shared, challengeC || challengeA,
// "hichain_auth_session_key", keyLength).
func DeriveSessionKey(shared, challengeC, challengeA []byte, keyLength int) ([]byte, error) {
	if len(shared) == 0 {
		return nil, status.ErrSessionKeyMissing
	}
	if keyLength < SessionKeyLength {
		return nil, fmt.Errorf("%w: %d < %d", status.ErrSessionKeyTooShort, keyLength, SessionKeyLength)
	}
	salt := crypto.NewBuilder(2 * message.ChallengeSize)
	if err := salt.Append(challengeC, challengeA); err != nil {
		return nil, err
	}
	return crypto.HKDFSHA256(shared, salt.Bytes(), []byte(sessionKeyInfo), keyLength)
}

// party holds what both roles keep during one run.
type party struct {
	cfg       Config
	alias     string
	peer      *identity.DeviceEntry
	challenge []byte
	peerChal  []byte
	eph       *crypto.P256KeyPair
	ephPub    []byte
	peerEph   []byte
	key       []byte
	version   message.Version
}

func newParty(cfg Config) (*party, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	alias, err := keystore.KeyAlias(cfg.GroupID, keystore.PurposeLTKeyPair, cfg.SelfAuthID)
	if err != nil {
		return nil, err
	}
	return &party{cfg: cfg, alias: alias}, nil
}

// resolvePeer loads the trust record for authID.
func (p *party) resolvePeer(authID []byte) error {
	e, err := p.cfg.Store.ResolvePeerDeviceEntry(identity.AccountUnrelated, p.cfg.GroupID, authID)
	if errors.Is(err, identity.ErrDeviceNotFound) {
		return fmt.Errorf("%w: %x", status.ErrPeerNotTrusted, authID)
	}
	if err != nil {
		return err
	}
	p.peer = e
	return nil
}

// begin generates the challenge and ephemeral key of this side.
func (p *party) begin() error {
	p.challenge = make([]byte, message.ChallengeSize)
	if _, err := io.ReadFull(p.cfg.Rand, p.challenge); err != nil {
		return fmt.Errorf("sts: challenge: %w", err)
	}
	eph, err := crypto.P256GenerateKeyPair()
	if err != nil {
		return err
	}
	p.eph = eph
	p.ephPub = eph.PublicKey()
	return nil
}

// agree runs ECDH with the peer's ephemeral key and derives the session key.
func (p *party) agree(challengeC, challengeA []byte) error {
	shared, err := crypto.P256ECDH(p.eph, p.peerEph)
	if err != nil {
		return fmt.Errorf("%w: peer epk: %v", status.ErrMalformedPayload, err)
	}
	defer crypto.Wipe(shared)
	key, err := DeriveSessionKey(shared, challengeC, challengeA, p.cfg.KeyLength)
	if err != nil {
		return err
	}
	p.key = key
	return nil
}

func (p *party) sign(parts ...[]byte) ([]byte, error) {
	b, err := concat(parts...)
	if err != nil {
		return nil, err
	}
	defer b.Wipe()
	return p.cfg.Keystore.Sign(p.alias, b.Bytes())
}

func (p *party) verify(sig []byte, parts ...[]byte) error {
	b, err := concat(parts...)
	if err != nil {
		return err
	}
	defer b.Wipe()
	return p.cfg.Keystore.Verify(p.peer.UserType, b.Bytes(), p.peer.LTPK, sig)
}

// openSignature decrypts an encrypted signature.
func (p *party) openSignature(data []byte, tag string) ([]byte, error) {
	sig, err := p.cfg.Keystore.Decrypt(p.key, data, tag)
	if err != nil {
		return nil, err
	}
	if len(sig) != crypto.P256SignatureSize {
		crypto.Wipe(sig)
		return nil, fmt.Errorf("%w: signature is %d bytes", status.ErrPayloadTooShort, len(sig))
	}
	return sig, nil
}

func (p *party) destroy() {
	crypto.Wipe(p.challenge, p.peerChal, p.key)
	p.challenge, p.peerChal, p.key = nil, nil, nil
	p.eph = nil
}

func concat(parts ...[]byte) (*crypto.Builder, error) {
	n := 0
	for _, part := range parts {
		n += len(part)
	}
	b := crypto.NewBuilder(n)
	if err := b.Append(parts...); err != nil {
		return nil, err
	}
	return b, nil
}

func checkChallenge(c []byte) error {
	if len(c) != message.ChallengeSize {
		return fmt.Errorf("%w: challenge is %d bytes", status.ErrMalformedPayload, len(c))
	}
	return nil
}

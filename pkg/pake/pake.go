// Package pake runs the PIN-authenticated key agreement that opens a bind.
//
// The centre (Client) and the accessory (Server) run SPAKE2+ keyed by the
// shared PIN and derive a session key from its output, the salt and both
// challenges. Each side proves possession of the key before it is used.
//
//	Client (centre)                      Server (accessory)
//	BuildRequest()        --1------>     HandleRequest()
//	                      <--0x8001--    salt, Y, challengeA
//	HandleResponse()      --3------>     HandleConfirm()
//	  X, challengeC, kcf(KcA, Y)           verifies kcf, derives key
//	                      <--0x8003--    ServerConfirmation(): kcf(KcB, X)
//	VerifyServerConfirm()
package pake

import (
	"errors"
	"fmt"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/crypto/spake2p"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

// Protocol constants.
const (
	// SessionKeyLength is the minimum and default session key length.
	SessionKeyLength = 32

	// SaltSize is the salt the accessory generates.
	SaltSize = 16

	// PINIterations is the PBKDF2 iteration count for the PIN.
	PINIterations = 1000

	contextPrefix    = "hichain_pake_v1"
	sessionKeyInfo   = "hichain_pake_session_key"
	proverIdentity   = "hichain_centre"
	verifierIdentity = "hichain_accessory"
)

var (
	// ErrEmptyPIN is returned when no PIN is configured.
	ErrEmptyPIN = errors.New("pake: empty pin")

	// ErrInvalidState is returned when a step is taken out of order.
	ErrInvalidState = errors.New("pake: invalid state")
)

// Config is shared by Client and Server.
type Config struct {
	// PIN is the shared secret. Required.
	PIN []byte

	// KeyLength is the session key length. Zero means SessionKeyLength.
	KeyLength int

	// Versions is the supported version range. Zero means
	// message.DefaultVersionRange().
	Versions message.VersionRange

	// OperationCode is sent in the request.
	OperationCode int
}

func (c *Config) applyDefaults() {
	if c.KeyLength == 0 {
		c.KeyLength = SessionKeyLength
	}
	if c.Versions == (message.VersionRange{}) {
		c.Versions = message.DefaultVersionRange()
	}
}

// State is the material one side accumulates during the exchange.
type State struct {
	SelfChallenge []byte
	PeerChallenge []byte
	Salt          []byte
	SessionKey    []byte
	Version       message.Version
}

// Destroy wipes the state.
func (s *State) Destroy() {
	crypto.Wipe(s.SelfChallenge, s.PeerChallenge, s.Salt, s.SessionKey)
	*s = State{}
}

// DeriveSessionKey derives the session key from the SPAKE2+ secret Ke:
// HKDF-SHA256(Ke, salt, "hichain_pake_session_key" || challengeC || challengeA).
// A key shorter than SessionKeyLength is never produced.
func DeriveSessionKey(ke, salt, challengeC, challengeA []byte, keyLength int) ([]byte, error) {
	if len(ke) == 0 {
		return nil, status.ErrSessionKeyMissing
	}
	if keyLength < SessionKeyLength {
		return nil, fmt.Errorf("%w: %d < %d", status.ErrSessionKeyTooShort, keyLength, SessionKeyLength)
	}
	info := crypto.NewBuilder(len(sessionKeyInfo) + len(challengeC) + len(challengeA))
	if err := info.Append([]byte(sessionKeyInfo), challengeC, challengeA); err != nil {
		return nil, err
	}
	return crypto.HKDFSHA256(ke, salt, info.Bytes(), keyLength)
}

// transcriptContext returns SHA256("hichain_pake_v1" || salt || challengeC || challengeA).
func transcriptContext(salt, challengeC, challengeA []byte) []byte {
	return crypto.SHA256Concat([]byte(contextPrefix), salt, challengeC, challengeA)
}

// passwordScalars derives w0 and w1 from the PIN:
// ws = PBKDF2(pin, salt, 1000, 80), w0 = ws[:40] mod n, w1 = ws[40:] mod n.
func passwordScalars(pin, salt []byte) (w0, w1 []byte) {
	ws := crypto.PBKDF2SHA256(pin, salt, PINIterations, 2*spake2p.WsSizeBytes)
	defer crypto.Wipe(ws)
	return spake2p.ReduceScalar(ws[:spake2p.WsSizeBytes]), spake2p.ReduceScalar(ws[spake2p.WsSizeBytes:])
}

// Package spake2p implements SPAKE2+ over P-256 with SHA-256, HKDF and HMAC
// (RFC 9383).
//
// The transcript context is supplied together with the peer share rather than
// at construction, so a responder can publish its share before it has seen
// every input the context is derived from.
//
//	Prover                              Verifier
//	NewProver(w0, w1)                   NewVerifier(w0, L)
//	                    <----Y-----     Y = GenerateShare()
//	X = GenerateShare()
//	ProcessPeerShare(ctx, Y)
//	cA = Confirmation() --X, cA-->      ProcessPeerShare(ctx, X)
//	                                    VerifyPeerConfirmation(cA)
//	                    <---cB-----     cB = Confirmation()
//	VerifyPeerConfirmation(cB)
//	Ke = SharedSecret()                 Ke = SharedSecret()
package spake2p

import (
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"math/big"

	"github.com/backkem/hichain/pkg/crypto"
)

// Sizes.
const (
	GroupSizeBytes = 32
	PointSizeBytes = 65

	// WsSizeBytes is the length of each PBKDF2 output half; the extra 8 bytes
	// make the reduction mod n unbiased.
	WsSizeBytes = 40
)

// M and N from RFC 9383 section 4, uncompressed.
var (
	pointMBytes = []byte{
		0x04, 0x88, 0x6e, 0x2f, 0x97, 0xac, 0xe4, 0x6e, 0x55, 0xba, 0x9d, 0xd7, 0x24, 0x25, 0x79, 0xf2, 0x99,
		0x3b, 0x64, 0xe1, 0x6e, 0xf3, 0xdc, 0xab, 0x95, 0xaf, 0xd4, 0x97, 0x33, 0x3d, 0x8f, 0xa1, 0x2f, 0x5f,
		0xf3, 0x55, 0x16, 0x3e, 0x43, 0xce, 0x22, 0x4e, 0x0b, 0x0e, 0x65, 0xff, 0x02, 0xac, 0x8e, 0x5c, 0x7b,
		0xe0, 0x94, 0x19, 0xc7, 0x85, 0xe0, 0xca, 0x54, 0x7d, 0x55, 0xa1, 0x2e, 0x2d, 0x20,
	}
	pointNBytes = []byte{
		0x04, 0xd8, 0xbb, 0xd6, 0xc6, 0x39, 0xc6, 0x29, 0x37, 0xb0, 0x4d, 0x99, 0x7f, 0x38, 0xc3, 0x77, 0x07,
		0x19, 0xc6, 0x29, 0xd7, 0x01, 0x4d, 0x49, 0xa2, 0x4b, 0x4f, 0x98, 0xba, 0xa1, 0x29, 0x2b, 0x49, 0x07,
		0xd6, 0x0a, 0xa6, 0xbf, 0xad, 0xe4, 0x50, 0x08, 0xa6, 0x36, 0x33, 0x7f, 0x51, 0x68, 0xc6, 0x4d, 0x9b,
		0xd3, 0x60, 0x34, 0x80, 0x8c, 0xd5, 0x64, 0x49, 0x0b, 0x1e, 0x65, 0x6e, 0xdb, 0xe7,
	}

	pointM = mustDecodePoint(pointMBytes)
	pointN = mustDecodePoint(pointNBytes)
)

var p256 = elliptic.P256()

// Role is the SPAKE2+ participant role.
type Role int

const (
	// RoleProver holds w0 and w1.
	RoleProver Role = iota
	// RoleVerifier holds w0 and L = w1*P.
	RoleVerifier
)

type state int

const (
	stateInit state = iota
	stateShareGenerated
	stateSharedSecretComputed
	stateConfirmed
	stateDestroyed
)

var (
	ErrInvalidW0Size       = errors.New("spake2p: w0 must be 32 bytes")
	ErrInvalidW1Size       = errors.New("spake2p: w1 must be 32 bytes")
	ErrInvalidLSize        = errors.New("spake2p: L must be 65 bytes")
	ErrInvalidShareSize    = errors.New("spake2p: share must be 65 bytes")
	ErrInvalidPointOnCurve = errors.New("spake2p: point is not on the curve")
	ErrInvalidState        = errors.New("spake2p: invalid state")
	ErrConfirmationFailed  = errors.New("spake2p: key confirmation failed")
)

// SPAKE2P is one side of a SPAKE2+ run. It is not safe for concurrent use.
type SPAKE2P struct {
	role       Role
	idProver   []byte
	idVerifier []byte

	w0 *big.Int
	w1 *big.Int // prover only
	L  *point   // verifier only

	myRandom  *big.Int
	myShare   []byte
	peerShare []byte
	z, v      []byte

	ka, ke   []byte
	kcA, kcB []byte

	state state
	rand  io.Reader
}

type point struct {
	x, y *big.Int
}

// NewProver creates the side that knows both password scalars.
func NewProver(idProver, idVerifier, w0, w1 []byte) (*SPAKE2P, error) {
	if len(w0) != GroupSizeBytes {
		return nil, ErrInvalidW0Size
	}
	if len(w1) != GroupSizeBytes {
		return nil, ErrInvalidW1Size
	}

	s := &SPAKE2P{
		role:       RoleProver,
		idProver:   copyBytes(idProver),
		idVerifier: copyBytes(idVerifier),
		w0:         new(big.Int).SetBytes(w0),
		w1:         new(big.Int).SetBytes(w1),
		state:      stateInit,
		rand:       rand.Reader,
	}

	return s, nil
}

// NewVerifier creates the side that holds the registration record (w0, L).
func NewVerifier(idProver, idVerifier, w0, L []byte) (*SPAKE2P, error) {
	if len(w0) != GroupSizeBytes {
		return nil, ErrInvalidW0Size
	}
	if len(L) != PointSizeBytes {
		return nil, ErrInvalidLSize
	}

	Lpoint, err := decodePoint(L)
	if err != nil {
		return nil, err
	}

	s := &SPAKE2P{
		role:       RoleVerifier,
		idProver:   copyBytes(idProver),
		idVerifier: copyBytes(idVerifier),
		w0:         new(big.Int).SetBytes(w0),
		L:          Lpoint,
		state:      stateInit,
		rand:       rand.Reader,
	}

	return s, nil
}

// GenerateShare returns X = x*P + w0*M for the prover or Y = y*P + w0*N for
// the verifier.
func (s *SPAKE2P) GenerateShare() ([]byte, error) {
	if s.state != stateInit {
		return nil, ErrInvalidState
	}

	myRandom, err := generateRandomScalar(s.rand)
	if err != nil {
		return nil, err
	}
	s.myRandom = myRandom

	var share *point
	if s.role == RoleProver {
		share = computeShare(myRandom, s.w0, pointM)
	} else {
		share = computeShare(myRandom, s.w0, pointN)
	}

	s.myShare = encodePoint(share)
	s.state = stateShareGenerated

	return copyBytes(s.myShare), nil
}

// ProcessPeerShare computes Z and V from the peer share and derives the key
// schedule over a transcript bound to context.
func (s *SPAKE2P) ProcessPeerShare(context, peerShare []byte) error {
	if s.state != stateShareGenerated {
		return ErrInvalidState
	}
	if len(peerShare) != PointSizeBytes {
		return ErrInvalidShareSize
	}

	peer, err := decodePoint(peerShare)
	if err != nil {
		return err
	}

	s.peerShare = copyBytes(peerShare)

	// P-256 has cofactor 1.
	if s.role == RoleProver {
		s.z, s.v = s.computeProverSecrets(peer)
	} else {
		s.z, s.v = s.computeVerifierSecrets(peer)
	}

	if err := s.deriveKeys(context); err != nil {
		return err
	}

	s.state = stateSharedSecretComputed
	return nil
}

// Confirmation returns MAC(KcA, Y) for the prover or MAC(KcB, X) for the
// verifier.
func (s *SPAKE2P) Confirmation() ([]byte, error) {
	if s.state != stateSharedSecretComputed && s.state != stateConfirmed {
		return nil, ErrInvalidState
	}

	if s.role == RoleProver {
		return crypto.HMACSHA256(s.kcA, s.peerShare), nil
	}
	return crypto.HMACSHA256(s.kcB, s.peerShare), nil
}

// VerifyPeerConfirmation checks the peer's MAC over our own share.
func (s *SPAKE2P) VerifyPeerConfirmation(peerConfirm []byte) error {
	if s.state != stateSharedSecretComputed && s.state != stateConfirmed {
		return ErrInvalidState
	}

	var expected []byte
	if s.role == RoleProver {
		expected = crypto.HMACSHA256(s.kcB, s.myShare)
	} else {
		expected = crypto.HMACSHA256(s.kcA, s.myShare)
	}

	if !crypto.HMACEqual(expected, peerConfirm) {
		return ErrConfirmationFailed
	}

	s.state = stateConfirmed
	return nil
}

// SharedSecret returns a copy of Ke, or nil before the peer share has been
// processed.
func (s *SPAKE2P) SharedSecret() []byte {
	if s.state != stateSharedSecretComputed && s.state != stateConfirmed {
		return nil
	}
	return copyBytes(s.ke)
}

// Share returns this side's public share, or nil before GenerateShare.
func (s *SPAKE2P) Share() []byte {
	return copyBytes(s.myShare)
}

// Destroy zeroes all secret state. The instance is unusable afterwards.
func (s *SPAKE2P) Destroy() {
	crypto.Wipe(s.z, s.v, s.ka, s.ke, s.kcA, s.kcB)
	for _, k := range []*big.Int{s.w0, s.w1, s.myRandom} {
		if k != nil {
			k.SetInt64(0)
		}
	}
	s.z, s.v, s.ka, s.ke, s.kcA, s.kcB = nil, nil, nil, nil, nil, nil
	s.state = stateDestroyed
}

// Z = x*(Y - w0*N), V = w1*(Y - w0*N)
func (s *SPAKE2P) computeProverSecrets(Y *point) (z, v []byte) {
	t := pointSub(Y, scalarMult(pointN, s.w0))
	return encodePoint(scalarMult(t, s.myRandom)), encodePoint(scalarMult(t, s.w1))
}

// Z = y*(X - w0*M), V = y*L
func (s *SPAKE2P) computeVerifierSecrets(X *point) (z, v []byte) {
	t := pointSub(X, scalarMult(pointM, s.w0))
	return encodePoint(scalarMult(t, s.myRandom)), encodePoint(scalarMult(s.L, s.myRandom))
}

// deriveKeys splits SHA256(TT) into Ka || Ke and expands Ka into KcA || KcB.
func (s *SPAKE2P) deriveKeys(context []byte) error {
	tt := s.buildTranscript(context)
	kae := sha256.Sum256(tt)
	crypto.Wipe(tt)

	s.ka = copyBytes(kae[:16])
	s.ke = copyBytes(kae[16:])
	crypto.Wipe(kae[:])

	kc, err := crypto.HKDFSHA256(s.ka, nil, []byte("ConfirmationKeys"), 32)
	if err != nil {
		return err
	}
	s.kcA = copyBytes(kc[:16])
	s.kcB = copyBytes(kc[16:])
	crypto.Wipe(kc)
	return nil
}

// buildTranscript returns TT, each field prefixed with its 8-byte
// little-endian length: Context, idProver, idVerifier, M, N, X, Y, Z, V, w0.
func (s *SPAKE2P) buildTranscript(context []byte) []byte {
	var X, Y []byte
	if s.role == RoleProver {
		X = s.myShare
		Y = s.peerShare
	} else {
		X = s.peerShare
		Y = s.myShare
	}

	w0Bytes := make([]byte, GroupSizeBytes)
	s.w0.FillBytes(w0Bytes)

	var tt []byte
	tt = appendWithLen64(tt, context)
	tt = appendWithLen64(tt, s.idProver)
	tt = appendWithLen64(tt, s.idVerifier)
	tt = appendWithLen64(tt, pointMBytes)
	tt = appendWithLen64(tt, pointNBytes)
	tt = appendWithLen64(tt, X)
	tt = appendWithLen64(tt, Y)
	tt = appendWithLen64(tt, s.z)
	tt = appendWithLen64(tt, s.v)
	tt = appendWithLen64(tt, w0Bytes)
	crypto.Wipe(w0Bytes)
	return tt
}

func appendWithLen64(dst, data []byte) []byte {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, data...)
	return dst
}

func mustDecodePoint(data []byte) *point {
	p, err := decodePoint(data)
	if err != nil {
		panic(err)
	}
	return p
}

func decodePoint(data []byte) (*point, error) {
	if len(data) != PointSizeBytes {
		return nil, ErrInvalidShareSize
	}
	if data[0] != 0x04 {
		return nil, ErrInvalidPointOnCurve
	}

	x := new(big.Int).SetBytes(data[1:33])
	y := new(big.Int).SetBytes(data[33:65])

	if !p256.IsOnCurve(x, y) {
		return nil, ErrInvalidPointOnCurve
	}

	return &point{x: x, y: y}, nil
}

func encodePoint(p *point) []byte {
	result := make([]byte, PointSizeBytes)
	result[0] = 0x04
	p.x.FillBytes(result[1:33])
	p.y.FillBytes(result[33:65])
	return result
}

func scalarMult(p *point, k *big.Int) *point {
	x, y := p256.ScalarMult(p.x, p.y, k.Bytes())
	return &point{x: x, y: y}
}

func pointAdd(p1, p2 *point) *point {
	x, y := p256.Add(p1.x, p1.y, p2.x, p2.y)
	return &point{x: x, y: y}
}

func pointSub(p1, p2 *point) *point {
	negY := new(big.Int).Neg(p2.y)
	negY.Mod(negY, p256.Params().P)
	x, y := p256.Add(p1.x, p1.y, p2.x, negY)
	return &point{x: x, y: y}
}

// computeShare returns random*P + w0*generator.
func computeShare(random, w0 *big.Int, generator *point) *point {
	x, y := p256.ScalarBaseMult(random.Bytes())
	return pointAdd(&point{x: x, y: y}, scalarMult(generator, w0))
}

func generateRandomScalar(r io.Reader) (*big.Int, error) {
	n := p256.Params().N
	for {
		b := make([]byte, GroupSizeBytes)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		k := new(big.Int).SetBytes(b)
		if k.Sign() > 0 && k.Cmp(n) < 0 {
			return k, nil
		}
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// SetRandom replaces the scalar source. Tests use it for deterministic runs.
func (s *SPAKE2P) SetRandom(r io.Reader) {
	s.rand = r
}

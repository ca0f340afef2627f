package pake

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/crypto/spake2p"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

// Server is the accessory side of the exchange. It is not safe for concurrent
// use.
type Server struct {
	cfg   Config
	rand  io.Reader
	spake *spake2p.SPAKE2P
	state State
	step  int
}

const (
	serverInit = iota
	serverResponded
	serverConfirmed
)

// NewServer creates an accessory. rng may be nil.
func NewServer(cfg Config, rng io.Reader) (*Server, error) {
	if len(cfg.PIN) == 0 {
		return nil, ErrEmptyPIN
	}
	cfg.applyDefaults()
	cfg.PIN = append([]byte(nil), cfg.PIN...)
	if rng == nil {
		rng = rand.Reader
	}
	return &Server{cfg: cfg, rand: rng}, nil
}

// HandleRequest negotiates the version and returns the accessory's share.
// The PIN is reduced to the verifier form (w0, L) immediately.
func (s *Server) HandleRequest(req *message.PakeRequest) (*message.PakeResponse, error) {
	if s.step != serverInit {
		return nil, ErrInvalidState
	}
	version, err := s.cfg.Versions.Negotiate(req.Version)
	if err != nil {
		return nil, err
	}
	s.state.Version = version

	s.state.Salt = make([]byte, SaltSize)
	s.state.SelfChallenge = make([]byte, message.ChallengeSize)
	if _, err := io.ReadFull(s.rand, s.state.Salt); err != nil {
		return nil, fmt.Errorf("pake: salt: %w", err)
	}
	if _, err := io.ReadFull(s.rand, s.state.SelfChallenge); err != nil {
		return nil, fmt.Errorf("pake: challenge: %w", err)
	}

	w0, w1 := passwordScalars(s.cfg.PIN, s.state.Salt)
	L := spake2p.ComputeL(w1)
	crypto.Wipe(w1, s.cfg.PIN)
	s.cfg.PIN = nil
	sp, err := spake2p.NewVerifier([]byte(proverIdentity), []byte(verifierIdentity), w0, L)
	crypto.Wipe(w0)
	if err != nil {
		return nil, err
	}
	s.spake = sp

	y, err := sp.GenerateShare()
	if err != nil {
		return nil, err
	}
	s.step = serverResponded
	return &message.PakeResponse{
		Salt:      append([]byte(nil), s.state.Salt...),
		EPK:       y,
		Challenge: append([]byte(nil), s.state.SelfChallenge...),
		Version:   message.VersionRange{Current: version, Min: s.cfg.Versions.Min},
	}, nil
}

// HandleConfirm processes the centre's share and key confirmation and
// derives the session key.
func (s *Server) HandleConfirm(confirm *message.PakeClientConfirm) error {
	if s.step != serverResponded {
		return ErrInvalidState
	}
	if len(confirm.Challenge) != message.ChallengeSize {
		return fmt.Errorf("%w: challenge is %d bytes", status.ErrMalformedPayload, len(confirm.Challenge))
	}
	s.state.PeerChallenge = append([]byte(nil), confirm.Challenge...)

	ctx := transcriptContext(s.state.Salt, s.state.PeerChallenge, s.state.SelfChallenge)
	if err := s.spake.ProcessPeerShare(ctx, confirm.EPK); err != nil {
		return fmt.Errorf("%w: peer share: %v", status.ErrMalformedPayload, err)
	}
	if err := s.spake.VerifyPeerConfirmation(confirm.KcfData); err != nil {
		return fmt.Errorf("%w: centre", status.ErrConfirmationFailed)
	}

	ke := s.spake.SharedSecret()
	defer crypto.Wipe(ke)
	key, err := DeriveSessionKey(ke, s.state.Salt, s.state.PeerChallenge, s.state.SelfChallenge, s.cfg.KeyLength)
	if err != nil {
		return err
	}
	s.state.SessionKey = key
	s.step = serverConfirmed
	return nil
}

// ServerConfirmation returns the accessory's key confirmation.
func (s *Server) ServerConfirmation() ([]byte, error) {
	if s.step != serverConfirmed {
		return nil, ErrInvalidState
	}
	return s.spake.Confirmation()
}

// State returns the accumulated state. The caller must not modify it.
func (s *Server) State() *State {
	return &s.state
}

// Destroy wipes all key material.
func (s *Server) Destroy() {
	if s.spake != nil {
		s.spake.Destroy()
		s.spake = nil
	}
	s.state.Destroy()
	crypto.Wipe(s.cfg.PIN)
	s.cfg.PIN = nil
}

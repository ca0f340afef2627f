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

// Client is the centre side of the exchange. It is not safe for concurrent use.
type Client struct {
	cfg   Config
	rand  io.Reader
	spake *spake2p.SPAKE2P
	state State
	step  int
}

const (
	clientInit = iota
	clientRequested
	clientConfirmSent
	clientDone
)

// NewClient creates a centre. rng may be nil.
func NewClient(cfg Config, rng io.Reader) (*Client, error) {
	if len(cfg.PIN) == 0 {
		return nil, ErrEmptyPIN
	}
	cfg.applyDefaults()
	cfg.PIN = append([]byte(nil), cfg.PIN...)
	if rng == nil {
		rng = rand.Reader
	}
	return &Client{cfg: cfg, rand: rng}, nil
}

// BuildRequest returns the opening request.
func (c *Client) BuildRequest() (*message.PakeRequest, error) {
	if c.step != clientInit {
		return nil, ErrInvalidState
	}
	c.step = clientRequested
	return &message.PakeRequest{
		Version:       c.cfg.Versions,
		Support256Mod: true,
		OperationCode: c.cfg.OperationCode,
	}, nil
}

// HandleResponse processes the accessory's share and returns the confirm
// message without its exchange payload, which the caller adds once the
// session key is available through State.
func (c *Client) HandleResponse(resp *message.PakeResponse) (*message.PakeClientConfirm, error) {
	if c.step != clientRequested {
		return nil, ErrInvalidState
	}
	if len(resp.Challenge) != message.ChallengeSize {
		return nil, fmt.Errorf("%w: challenge is %d bytes", status.ErrMalformedPayload, len(resp.Challenge))
	}
	if len(resp.Salt) == 0 || len(resp.Salt) > message.MaxSaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes", status.ErrMalformedPayload, len(resp.Salt))
	}
	if len(resp.EPK) == 0 || len(resp.EPK) > message.MaxEPKSize {
		return nil, fmt.Errorf("%w: epk is %d bytes", status.ErrMalformedPayload, len(resp.EPK))
	}
	if !c.cfg.Versions.Contains(resp.Version.Current) {
		return nil, fmt.Errorf("%w: peer chose %s outside [%s, %s]", status.ErrVersionMismatch,
			resp.Version.Current, c.cfg.Versions.Min, c.cfg.Versions.Current)
	}

	challengeC := make([]byte, message.ChallengeSize)
	if _, err := io.ReadFull(c.rand, challengeC); err != nil {
		return nil, fmt.Errorf("pake: challenge: %w", err)
	}
	c.state.SelfChallenge = challengeC
	c.state.PeerChallenge = append([]byte(nil), resp.Challenge...)
	c.state.Salt = append([]byte(nil), resp.Salt...)
	c.state.Version = resp.Version.Current

	w0, w1 := passwordScalars(c.cfg.PIN, c.state.Salt)
	defer crypto.Wipe(w0, w1)
	sp, err := spake2p.NewProver([]byte(proverIdentity), []byte(verifierIdentity), w0, w1)
	if err != nil {
		return nil, err
	}
	c.spake = sp

	x, err := sp.GenerateShare()
	if err != nil {
		return nil, err
	}
	ctx := transcriptContext(c.state.Salt, c.state.SelfChallenge, c.state.PeerChallenge)
	if err := sp.ProcessPeerShare(ctx, resp.EPK); err != nil {
		return nil, fmt.Errorf("%w: peer share: %v", status.ErrMalformedPayload, err)
	}

	ke := sp.SharedSecret()
	defer crypto.Wipe(ke)
	key, err := DeriveSessionKey(ke, c.state.Salt, c.state.SelfChallenge, c.state.PeerChallenge, c.cfg.KeyLength)
	if err != nil {
		return nil, err
	}
	c.state.SessionKey = key

	kcf, err := sp.Confirmation()
	if err != nil {
		return nil, err
	}
	c.step = clientConfirmSent
	return &message.PakeClientConfirm{
		KcfData:   kcf,
		Challenge: append([]byte(nil), challengeC...),
		EPK:       x,
	}, nil
}

// VerifyServerConfirm checks the accessory's key confirmation.
func (c *Client) VerifyServerConfirm(kcf []byte) error {
	if c.step != clientConfirmSent {
		return ErrInvalidState
	}
	if err := c.spake.VerifyPeerConfirmation(kcf); err != nil {
		return fmt.Errorf("%w: accessory", status.ErrConfirmationFailed)
	}
	c.step = clientDone
	return nil
}

// State returns the accumulated state. The caller must not modify it.
func (c *Client) State() *State {
	return &c.state
}

// Destroy wipes all key material.
func (c *Client) Destroy() {
	if c.spake != nil {
		c.spake.Destroy()
		c.spake = nil
	}
	c.state.Destroy()
	crypto.Wipe(c.cfg.PIN)
	c.cfg.PIN = nil
}

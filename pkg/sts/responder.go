package sts

import (
	"bytes"
	"fmt"

	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

// Responder is the accessory side. It is not safe for concurrent use.
type Responder struct {
	p    *party
	step int
}

// NewResponder creates a responder.
func NewResponder(cfg Config) (*Responder, error) {
	p, err := newParty(cfg)
	if err != nil {
		return nil, err
	}
	return &Responder{p: p}, nil
}

// HandleStart authenticates the initiator's start message and returns the
// response.
func (r *Responder) HandleStart(start *message.AuthStart) (*message.AuthStartResponse, error) {
	if r.step != 0 {
		return nil, ErrInvalidState
	}
	p := r.p
	version, err := p.cfg.Versions.Negotiate(start.Version)
	if err != nil {
		return nil, err
	}
	p.version = version
	if err := checkChallenge(start.Challenge); err != nil {
		return nil, err
	}
	if err := p.resolvePeer(start.PeerAuthID); err != nil {
		return nil, err
	}
	if keystore.UserType(start.PeerUserType) != p.peer.UserType {
		return nil, fmt.Errorf("%w: peer claims user type %d, bound as %s",
			status.ErrPeerNotTrusted, start.PeerUserType, p.peer.UserType)
	}
	p.peerChal = bytes.Clone(start.Challenge)
	p.peerEph = bytes.Clone(start.EPK)
	if err := p.verify(start.AuthData, p.peerChal, p.peerEph, p.peer.AuthID); err != nil {
		return nil, err
	}

	if err := p.begin(); err != nil {
		return nil, err
	}
	if err := p.agree(p.peerChal, p.challenge); err != nil {
		return nil, err
	}
	sig, err := p.sign(p.challenge, p.peerChal, p.ephPub, p.peerEph, p.cfg.SelfAuthID)
	if err != nil {
		return nil, err
	}
	enc, err := p.cfg.Keystore.Encrypt(p.key, sig, StartResponseTag)
	if err != nil {
		return nil, err
	}
	r.step = 1
	return &message.AuthStartResponse{
		AuthData:     enc,
		Challenge:    bytes.Clone(p.challenge),
		EPK:          bytes.Clone(p.ephPub),
		PeerAuthID:   bytes.Clone(p.cfg.SelfAuthID),
		PeerUserType: int(p.cfg.SelfUserType),
		Version:      message.VersionRange{Current: version, Min: p.cfg.Versions.Min},
	}, nil
}

// HandleAck verifies the initiator's ack.
func (r *Responder) HandleAck(ack *message.AuthAck) error {
	if r.step != 1 {
		return ErrInvalidState
	}
	p := r.p
	sig, err := p.openSignature(ack.AuthData, AckTag)
	if err != nil {
		return err
	}
	if err := p.verify(sig, p.peerChal, p.challenge, p.peerEph, p.ephPub, p.peer.AuthID); err != nil {
		return err
	}
	r.step = 2
	return nil
}

// SessionKey returns the agreed key once HandleAck has succeeded.
func (r *Responder) SessionKey() []byte {
	if r.step != 2 {
		return nil
	}
	return r.p.key
}

// PeerAuthID returns the initiator's auth id once HandleStart has succeeded.
func (r *Responder) PeerAuthID() []byte {
	if r.p.peer == nil {
		return nil
	}
	return r.p.peer.AuthID
}

// Destroy wipes all key material.
func (r *Responder) Destroy() {
	r.p.destroy()
}

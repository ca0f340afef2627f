package sts

import (
	"bytes"
	"fmt"

	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

// Initiator is the centre side. It is not safe for concurrent use.
type Initiator struct {
	p    *party
	step int
}

// NewInitiator prepares an authentication of cfg.PeerAuthID.
func NewInitiator(cfg Config) (*Initiator, error) {
	if len(cfg.PeerAuthID) == 0 {
		return nil, ErrMissingConfig
	}
	p, err := newParty(cfg)
	if err != nil {
		return nil, err
	}
	return &Initiator{p: p}, nil
}

// Start checks that the peer is trusted and returns the start message.
func (i *Initiator) Start() (*message.AuthStart, error) {
	if i.step != 0 {
		return nil, ErrInvalidState
	}
	p := i.p
	if err := p.resolvePeer(p.cfg.PeerAuthID); err != nil {
		return nil, err
	}
	if err := p.begin(); err != nil {
		return nil, err
	}
	sig, err := p.sign(p.challenge, p.ephPub, p.cfg.SelfAuthID)
	if err != nil {
		return nil, err
	}
	i.step = 1
	return &message.AuthStart{
		AuthData:      sig,
		Challenge:     bytes.Clone(p.challenge),
		EPK:           bytes.Clone(p.ephPub),
		OperationCode: p.cfg.OperationCode,
		Version:       p.cfg.Versions,
		PeerAuthID:    bytes.Clone(p.cfg.SelfAuthID),
		PeerUserType:  int(p.cfg.SelfUserType),
	}, nil
}

// HandleResponse verifies the responder and returns the ack.
func (i *Initiator) HandleResponse(resp *message.AuthStartResponse) (*message.AuthAck, error) {
	if i.step != 1 {
		return nil, ErrInvalidState
	}
	p := i.p
	if !bytes.Equal(resp.PeerAuthID, p.peer.AuthID) {
		return nil, fmt.Errorf("%w: responder is %x", status.ErrPeerNotTrusted, []byte(resp.PeerAuthID))
	}
	if !p.cfg.Versions.Contains(resp.Version.Current) {
		return nil, fmt.Errorf("%w: peer chose %s", status.ErrVersionMismatch, resp.Version.Current)
	}
	if err := checkChallenge(resp.Challenge); err != nil {
		return nil, err
	}
	p.version = resp.Version.Current
	p.peerChal = bytes.Clone(resp.Challenge)
	p.peerEph = bytes.Clone(resp.EPK)

	if err := p.agree(p.challenge, p.peerChal); err != nil {
		return nil, err
	}
	sig, err := p.openSignature(resp.AuthData, StartResponseTag)
	if err != nil {
		return nil, err
	}
	if err := p.verify(sig, p.peerChal, p.challenge, p.peerEph, p.ephPub, p.peer.AuthID); err != nil {
		return nil, err
	}

	ackSig, err := p.sign(p.challenge, p.peerChal, p.ephPub, p.peerEph, p.cfg.SelfAuthID)
	if err != nil {
		return nil, err
	}
	enc, err := p.cfg.Keystore.Encrypt(p.key, ackSig, AckTag)
	if err != nil {
		return nil, err
	}
	i.step = 2
	return &message.AuthAck{AuthData: enc}, nil
}

// SessionKey returns the agreed key once HandleResponse has succeeded.
func (i *Initiator) SessionKey() []byte {
	if i.step != 2 {
		return nil
	}
	return i.p.key
}

// PeerAuthID returns the authenticated peer.
func (i *Initiator) PeerAuthID() []byte {
	return i.p.cfg.PeerAuthID
}

// Version returns the version the responder chose.
func (i *Initiator) Version() message.Version {
	return i.p.version
}

// Destroy wipes all key material.
func (i *Initiator) Destroy() {
	i.p.destroy()
}

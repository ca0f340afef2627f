// Package message builds and parses the JSON messages exchanged by the
// pairing and authentication protocols.
//
// Every message is an envelope {"message": code, "payload": {...}}; the auth
// messages carry a top-level "authForm" as well. The code fully determines the
// payload: parsing requires exactly the documented keys, each well typed, and
// rejects anything else with status.ErrMalformedPayload.
package message

import (
	"fmt"

	"github.com/backkem/hichain/pkg/status"
)

// Code is a message code. The values are part of the wire contract.
type Code int

const (
	CodePakeRequest       Code = 0x0001
	CodePakeResponse      Code = 0x8001
	CodePakeClientConfirm Code = 0x0003
	CodePakeServerConfirm Code = 0x8003
	CodeAuthStart         Code = 0x0011
	CodeAuthStartResponse Code = 0x8011
	CodeAuthAck           Code = 0x0012
	CodeInform            Code = 0x8012
)

// String returns the message name.
func (c Code) String() string {
	switch c {
	case CodePakeRequest:
		return "PakeRequest"
	case CodePakeResponse:
		return "PakeResponse"
	case CodePakeClientConfirm:
		return "PakeClientConfirm"
	case CodePakeServerConfirm:
		return "PakeServerConfirm"
	case CodeAuthStart:
		return "AuthStart"
	case CodeAuthStartResponse:
		return "AuthStartResponse"
	case CodeAuthAck:
		return "AuthAck"
	case CodeInform:
		return "Inform"
	default:
		return fmt.Sprintf("Code(0x%04x)", int(c))
	}
}

// HasAuthForm reports whether messages with this code carry "authForm".
func (c Code) HasAuthForm() bool {
	return c == CodeAuthStart || c == CodeAuthStartResponse || c == CodeAuthAck
}

// AuthForm is the account form of an auth message.
type AuthForm int

// AuthFormAccountUnrelated is device trust independent of a user account.
const AuthFormAccountUnrelated AuthForm = 0

// Size limits for byte fields.
const (
	ChallengeSize     = 16
	MaxSaltSize       = 32
	MaxEPKSize        = 65
	MaxKcfDataSize    = 64
	MaxAuthIDSize     = 64
	MaxAuthDataSize   = 1024
	MaxExAuthInfoSize = 1024
)

// Payload is the body of a message. The concrete type is determined by the
// message code.
type Payload interface {
	Code() Code
	validate() error
}

// Message is a decoded message.
type Message struct {
	Code     Code
	AuthForm AuthForm
	Payload  Payload
}

// New wraps p in a message with the code it belongs to.
func New(p Payload) *Message {
	return &Message{Code: p.Code(), Payload: p}
}

// NewInform returns an inform message carrying code.
func NewInform(code status.Code) *Message {
	return New(&Inform{ErrorCode: int(code)})
}

// PakeRequest opens a bind. It is sent by the centre.
type PakeRequest struct {
	Version       VersionRange `json:"version"`
	Support256Mod bool         `json:"support256mod"`
	OperationCode int          `json:"operationCode"`
}

// PakeResponse answers a PakeRequest with the accessory's PAKE share.
type PakeResponse struct {
	Salt      HexBytes     `json:"salt"`
	EPK       HexBytes     `json:"epk"`
	Challenge HexBytes     `json:"challenge"`
	Version   VersionRange `json:"version"`
}

// PakeClientConfirm carries the centre's key confirmation, its share and
// challenge, and its encrypted exchange request.
type PakeClientConfirm struct {
	KcfData    HexBytes `json:"kcfData"`
	Challenge  HexBytes `json:"challenge"`
	EPK        HexBytes `json:"epk"`
	ExAuthInfo HexBytes `json:"exAuthInfo"`
}

// PakeServerConfirm carries the accessory's key confirmation and its
// encrypted exchange response.
type PakeServerConfirm struct {
	KcfData    HexBytes `json:"kcfData"`
	ExAuthInfo HexBytes `json:"exAuthInfo"`
}

// AuthStart opens an authentication between bound devices.
type AuthStart struct {
	AuthData      HexBytes     `json:"authData"`
	Challenge     HexBytes     `json:"challenge"`
	EPK           HexBytes     `json:"epk"`
	OperationCode int          `json:"operationCode"`
	Version       VersionRange `json:"version"`
	PeerAuthID    HexBytes     `json:"peerAuthId"`
	PeerUserType  int          `json:"peerUserType"`
}

// AuthStartResponse answers an AuthStart.
type AuthStartResponse struct {
	AuthData     HexBytes     `json:"authData"`
	Challenge    HexBytes     `json:"challenge"`
	EPK          HexBytes     `json:"epk"`
	PeerAuthID   HexBytes     `json:"peerAuthId"`
	PeerUserType int          `json:"peerUserType"`
	Version      VersionRange `json:"version"`
}

// AuthAck completes an authentication.
type AuthAck struct {
	AuthData HexBytes `json:"authData"`
}

// Inform reports a failure to the peer.
type Inform struct {
	ErrorCode int `json:"errorCode"`
}

func (*PakeRequest) Code() Code       { return CodePakeRequest }
func (*PakeResponse) Code() Code      { return CodePakeResponse }
func (*PakeClientConfirm) Code() Code { return CodePakeClientConfirm }
func (*PakeServerConfirm) Code() Code { return CodePakeServerConfirm }
func (*AuthStart) Code() Code         { return CodeAuthStart }
func (*AuthStartResponse) Code() Code { return CodeAuthStartResponse }
func (*AuthAck) Code() Code           { return CodeAuthAck }
func (*Inform) Code() Code            { return CodeInform }

func (p *PakeRequest) validate() error {
	return p.Version.validate()
}

func (p *PakeResponse) validate() error {
	if err := checkLen("salt", p.Salt, 1, MaxSaltSize); err != nil {
		return err
	}
	if err := checkLen("epk", p.EPK, 1, MaxEPKSize); err != nil {
		return err
	}
	if err := checkLen("challenge", p.Challenge, ChallengeSize, ChallengeSize); err != nil {
		return err
	}
	return p.Version.validate()
}

func (p *PakeClientConfirm) validate() error {
	if err := checkLen("kcfData", p.KcfData, 1, MaxKcfDataSize); err != nil {
		return err
	}
	if err := checkLen("challenge", p.Challenge, ChallengeSize, ChallengeSize); err != nil {
		return err
	}
	if err := checkLen("epk", p.EPK, 1, MaxEPKSize); err != nil {
		return err
	}
	return checkLen("exAuthInfo", p.ExAuthInfo, 1, MaxExAuthInfoSize)
}

func (p *PakeServerConfirm) validate() error {
	if err := checkLen("kcfData", p.KcfData, 1, MaxKcfDataSize); err != nil {
		return err
	}
	return checkLen("exAuthInfo", p.ExAuthInfo, 1, MaxExAuthInfoSize)
}

func (p *AuthStart) validate() error {
	if err := checkLen("authData", p.AuthData, 1, MaxAuthDataSize); err != nil {
		return err
	}
	if err := checkLen("challenge", p.Challenge, ChallengeSize, ChallengeSize); err != nil {
		return err
	}
	if err := checkLen("epk", p.EPK, 1, MaxEPKSize); err != nil {
		return err
	}
	if err := checkLen("peerAuthId", p.PeerAuthID, 1, MaxAuthIDSize); err != nil {
		return err
	}
	return p.Version.validate()
}

func (p *AuthStartResponse) validate() error {
	if err := checkLen("authData", p.AuthData, 1, MaxAuthDataSize); err != nil {
		return err
	}
	if err := checkLen("challenge", p.Challenge, ChallengeSize, ChallengeSize); err != nil {
		return err
	}
	if err := checkLen("epk", p.EPK, 1, MaxEPKSize); err != nil {
		return err
	}
	if err := checkLen("peerAuthId", p.PeerAuthID, 1, MaxAuthIDSize); err != nil {
		return err
	}
	return p.Version.validate()
}

func (p *AuthAck) validate() error {
	return checkLen("authData", p.AuthData, 1, MaxAuthDataSize)
}

func (p *Inform) validate() error { return nil }

func checkLen(field string, b []byte, lo, hi int) error {
	if len(b) < lo || len(b) > hi {
		if lo == hi {
			return fmt.Errorf("%w: %s is %d bytes, want %d", status.ErrMalformedPayload, field, len(b), lo)
		}
		return fmt.Errorf("%w: %s is %d bytes, want %d..%d", status.ErrMalformedPayload, field, len(b), lo, hi)
	}
	return nil
}

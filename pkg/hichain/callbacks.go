package hichain

import (
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/session"
	"github.com/backkem/hichain/pkg/status"
)

// Identity names one session as the host sees it.
type Identity struct {
	// SessionID is the host's handle for the session.
	SessionID uint64

	PackageName string
	ServiceType string

	OperationCode session.Operation
}

// ProtocolParams is what the host supplies for one session.
type ProtocolParams struct {
	SelfAuthID   []byte
	SelfUserType keystore.UserType

	// PeerAuthID is required to start an auth or unbind. For a bind it is
	// optional; when set the peer must present it.
	PeerAuthID []byte

	// PIN is required for a bind.
	PIN []byte

	// KeyLength overrides Config.KeyLength when non-zero.
	KeyLength int
}

// Result is the outcome of a session.
type Result struct {
	// Code is status.CodeOK on success.
	Code status.Code

	// PeerAuthID is the authenticated peer on success.
	PeerAuthID []byte
}

// OK reports whether the session succeeded.
func (r Result) OK() bool { return r.Code == status.CodeOK }

// Callbacks connects an Instance to its host. Methods are called from the
// goroutine driving the session and never while registry locks are held.
type Callbacks interface {
	// Transmit sends an encoded message to the peer of the session.
	Transmit(id Identity, data []byte) error

	// GetProtocolParams returns the parameters for a session.
	GetProtocolParams(id Identity, op session.Operation) (*ProtocolParams, error)

	// SetSessionKey hands over the key of an established session.
	SetSessionKey(id Identity, key []byte) error

	// SetServiceResult reports the end of a session.
	SetServiceResult(id Identity, result Result) error

	// ConfirmReceiveRequest decides whether an inbound request is served.
	ConfirmReceiveRequest(id Identity, op session.Operation) bool
}

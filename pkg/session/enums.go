// Package session runs one bind or auth between a centre and an accessory.
//
// A Session is a synchronous state machine: the host feeds it each decoded
// inbound message and sends whatever message it returns. Binds run the PAKE
// exchange followed by the exchange of long-term keys; auths run the STS
// exchange against an existing trust record. A session ends in Established
// or Failed and never leaves either state.
//
// Centre bind:
//
//	Init --StartBind--> PakeRequestSent --0x8001--> PakeResponseExchanged
//	     --> ExchangeRequested --0x8003--> PakeConfirmed --> Established
//
// Accessory bind:
//
//	Init --1--> PakeRequestReceived --> PakeResponseExchanged
//	     --3--> PakeConfirmed --> ExchangeResponded --> Established
//
// Auth:
//
//	centre:    Init --StartAuth--> AuthStarted --0x8011--> Established
//	accessory: Init --17--> AuthStarted --18--> Established
package session

import "fmt"

// Role is the side a session plays.
type Role int

const (
	// RoleCentre opens the session.
	RoleCentre Role = iota
	// RoleAccessory answers it.
	RoleAccessory
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleCentre:
		return "Centre"
	case RoleAccessory:
		return "Accessory"
	default:
		return "Unknown"
	}
}

// State is the position of a session in its protocol.
type State int

const (
	StateInit State = iota
	StatePakeRequestSent
	StatePakeRequestReceived
	StatePakeResponseExchanged
	StatePakeConfirmed
	StateAuthStarted
	StateExchangeRequested
	StateExchangeResponded
	StateEstablished
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StatePakeRequestSent:
		return "PakeRequestSent"
	case StatePakeRequestReceived:
		return "PakeRequestReceived"
	case StatePakeResponseExchanged:
		return "PakeResponseExchanged"
	case StatePakeConfirmed:
		return "PakeConfirmed"
	case StateAuthStarted:
		return "AuthStarted"
	case StateExchangeRequested:
		return "ExchangeRequested"
	case StateExchangeResponded:
		return "ExchangeResponded"
	case StateEstablished:
		return "Established"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is Established or Failed.
func (s State) Terminal() bool {
	return s == StateEstablished || s == StateFailed
}

// Operation is the operation code a session carries out.
type Operation int

const (
	OperationBind   Operation = 1
	OperationAuth   Operation = 2
	OperationUnbind Operation = 3
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OperationBind:
		return "Bind"
	case OperationAuth:
		return "Auth"
	case OperationUnbind:
		return "Unbind"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// Capabilities selects the operations a build of the engine offers.
type Capabilities struct {
	Bind bool
	Auth bool
}

// AllCapabilities enables every operation.
func AllCapabilities() Capabilities {
	return Capabilities{Bind: true, Auth: true}
}

// Allows reports whether op is enabled.
func (c Capabilities) Allows(op Operation) bool {
	switch op {
	case OperationBind:
		return c.Bind
	case OperationAuth:
		return c.Auth
	default:
		return false
	}
}

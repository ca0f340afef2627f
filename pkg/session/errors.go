package session

import "errors"

// Session package errors.
var (
	// ErrSessionTerminated is returned for messages delivered after the
	// session reached Established or Failed, or after Destroy.
	ErrSessionTerminated = errors.New("session: session terminated")

	// ErrInvalidRole is returned when an operation is started on the wrong
	// side.
	ErrInvalidRole = errors.New("session: operation not valid for role")

	// ErrAlreadyStarted is returned when StartBind or StartAuth is called
	// outside Init.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrMissingConfig is returned when a required Config field is unset.
	ErrMissingConfig = errors.New("session: incomplete config")
)

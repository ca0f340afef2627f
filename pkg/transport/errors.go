package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed link or server.
	ErrClosed = errors.New("transport: closed")

	// ErrNoHandler is returned when no frame handler is configured.
	ErrNoHandler = errors.New("transport: no frame handler configured")

	// ErrNoConn is returned when a link is created without a connection.
	ErrNoConn = errors.New("transport: no connection")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("transport: frame too large")

	// ErrInvalidFrame is returned for frames too short to carry a session id.
	ErrInvalidFrame = errors.New("transport: invalid frame")
)

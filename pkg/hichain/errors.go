package hichain

import "errors"

// Package-level errors.
var (
	// ErrKeystoreRequired is returned when Config.Keystore is nil.
	ErrKeystoreRequired = errors.New("hichain: keystore is required")

	// ErrStoreRequired is returned when Config.Store is nil.
	ErrStoreRequired = errors.New("hichain: store is required")

	// ErrCallbacksRequired is returned when Config.Callbacks is nil.
	ErrCallbacksRequired = errors.New("hichain: callbacks are required")

	// ErrSessionExists is returned when a session id is already in use.
	ErrSessionExists = errors.New("hichain: session already exists")

	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("hichain: session not found")

	// ErrNoProtocolParams is returned when the host supplies no parameters.
	ErrNoProtocolParams = errors.New("hichain: no protocol params")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hichain: instance closed")
)

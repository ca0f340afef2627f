// Package status defines the error taxonomy of the authentication engine and
// the numeric codes that travel in inform messages.
//
// Every package wraps one of the sentinels below with fmt.Errorf("%w: ...") so
// that FromError can recover the code at the session boundary.
package status

import (
	"errors"
	"fmt"
)

// Code is the numeric error code carried in an inform message.
type Code int

// Error codes. The values are part of the wire contract.
const (
	CodeOK                       Code = 0
	CodeResourceExhausted        Code = 1
	CodeMalformedPayload         Code = 2
	CodeVersionMismatch          Code = 3
	CodeDecryptFailed            Code = 4
	CodeSignatureInvalid         Code = 5
	CodeSessionKeyTooShort       Code = 6
	CodeSessionKeyMissing        Code = 7
	CodeKeyAliasGenerationFailed Code = 8
	CodeUnexpectedMessage        Code = 9
	CodeUnsupportedOperation     Code = 10
	CodePayloadTooShort          Code = 11
	CodeConfirmationFailed       Code = 12
	CodePeerRejected             Code = 13
	CodePeerNotTrusted           Code = 14
	CodePeerAborted              Code = 15
	CodeInternal                 Code = 255
)

// Sentinel errors, one per Code.
var (
	ErrResourceExhausted        = errors.New("resource exhausted")
	ErrMalformedPayload         = errors.New("malformed payload")
	ErrVersionMismatch          = errors.New("version mismatch")
	ErrDecryptFailed            = errors.New("decrypt failed")
	ErrSignatureInvalid         = errors.New("signature invalid")
	ErrSessionKeyTooShort       = errors.New("session key too short")
	ErrSessionKeyMissing        = errors.New("session key missing")
	ErrKeyAliasGenerationFailed = errors.New("key alias generation failed")
	ErrUnexpectedMessage        = errors.New("unexpected message")
	ErrUnsupportedOperation     = errors.New("unsupported operation")
	ErrPayloadTooShort          = errors.New("payload too short")
	ErrConfirmationFailed       = errors.New("key confirmation failed")
	ErrPeerRejected             = errors.New("request rejected")
	ErrPeerNotTrusted           = errors.New("peer not trusted")
	ErrPeerAborted              = errors.New("peer aborted session")
	ErrInternal                 = errors.New("internal error")
)

var codeErrors = []struct {
	code Code
	err  error
}{
	{CodeResourceExhausted, ErrResourceExhausted},
	{CodeMalformedPayload, ErrMalformedPayload},
	{CodeVersionMismatch, ErrVersionMismatch},
	{CodeDecryptFailed, ErrDecryptFailed},
	{CodeSignatureInvalid, ErrSignatureInvalid},
	{CodeSessionKeyTooShort, ErrSessionKeyTooShort},
	{CodeSessionKeyMissing, ErrSessionKeyMissing},
	{CodeKeyAliasGenerationFailed, ErrKeyAliasGenerationFailed},
	{CodeUnexpectedMessage, ErrUnexpectedMessage},
	{CodeUnsupportedOperation, ErrUnsupportedOperation},
	{CodePayloadTooShort, ErrPayloadTooShort},
	{CodeConfirmationFailed, ErrConfirmationFailed},
	{CodePeerRejected, ErrPeerRejected},
	{CodePeerNotTrusted, ErrPeerNotTrusted},
	{CodePeerAborted, ErrPeerAborted},
	{CodeInternal, ErrInternal},
}

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeResourceExhausted:
		return "ResourceExhausted"
	case CodeMalformedPayload:
		return "MalformedPayload"
	case CodeVersionMismatch:
		return "VersionMismatch"
	case CodeDecryptFailed:
		return "DecryptFailed"
	case CodeSignatureInvalid:
		return "SignatureInvalid"
	case CodeSessionKeyTooShort:
		return "SessionKeyTooShort"
	case CodeSessionKeyMissing:
		return "SessionKeyMissing"
	case CodeKeyAliasGenerationFailed:
		return "KeyAliasGenerationFailed"
	case CodeUnexpectedMessage:
		return "UnexpectedMessage"
	case CodeUnsupportedOperation:
		return "UnsupportedOperation"
	case CodePayloadTooShort:
		return "PayloadTooShort"
	case CodeConfirmationFailed:
		return "ConfirmationFailed"
	case CodePeerRejected:
		return "PeerRejected"
	case CodePeerNotTrusted:
		return "PeerNotTrusted"
	case CodePeerAborted:
		return "PeerAborted"
	case CodeInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Err returns the sentinel error for the code, or nil for CodeOK.
// Unknown codes map to ErrInternal.
func (c Code) Err() error {
	if c == CodeOK {
		return nil
	}
	for _, ce := range codeErrors {
		if ce.code == c {
			return ce.err
		}
	}
	return ErrInternal
}

// FromError maps an error to its code. nil maps to CodeOK and errors that wrap
// none of the sentinels map to CodeInternal.
func FromError(err error) Code {
	if err == nil {
		return CodeOK
	}
	var pe *PeerError
	if errors.As(err, &pe) {
		return CodePeerAborted
	}
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	return CodeInternal
}

// PeerError reports an inform message received from the peer.
type PeerError struct {
	Code Code
}

// Error implements error.
func (e *PeerError) Error() string {
	return fmt.Sprintf("%v: peer reported %s", ErrPeerAborted, e.Code)
}

// Unwrap makes errors.Is(err, ErrPeerAborted) hold.
func (e *PeerError) Unwrap() error {
	return ErrPeerAborted
}

package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeOK},
		{"bare sentinel", ErrDecryptFailed, CodeDecryptFailed},
		{"wrapped once", fmt.Errorf("%w: bad tag", ErrSignatureInvalid), CodeSignatureInvalid},
		{"wrapped twice", fmt.Errorf("outer: %w", fmt.Errorf("%w: x", ErrVersionMismatch)), CodeVersionMismatch},
		{"unknown", errors.New("boom"), CodeInternal},
		{"peer error", &PeerError{Code: CodeSignatureInvalid}, CodePeerAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromError(tt.err))
		})
	}
}

func TestCodeErrRoundTrip(t *testing.T) {
	for _, ce := range codeErrors {
		assert.Equal(t, ce.code, FromError(ce.code.Err()), ce.code.String())
	}
	assert.NoError(t, CodeOK.Err())
	assert.ErrorIs(t, Code(4242).Err(), ErrInternal)
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "UnexpectedMessage", CodeUnexpectedMessage.String())
	assert.Equal(t, "Code(77)", Code(77).String())
}

func TestPeerErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("session: %w", &PeerError{Code: CodeDecryptFailed})
	assert.ErrorIs(t, err, ErrPeerAborted)

	var pe *PeerError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeDecryptFailed, pe.Code)
}

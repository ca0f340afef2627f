package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/hichain/pkg/status"
)

func TestServiceID(t *testing.T) {
	a, err := ServiceID("com.example.app", "bind")
	require.NoError(t, err)
	b, err := ServiceID("com.example.app", "bind")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := ServiceID("com.example.app", "auth")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = ServiceID("", "bind")
	assert.ErrorIs(t, err, status.ErrKeyAliasGenerationFailed)
}

func TestKeyAlias(t *testing.T) {
	svc, err := ServiceID("com.example.app", "bind")
	require.NoError(t, err)

	a1, err := KeyAlias(svc, PurposeLTKeyPair, []byte("device-a"))
	require.NoError(t, err)
	a2, err := KeyAlias(svc, PurposeLTKeyPair, []byte("device-a"))
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	other, err := KeyAlias(svc, PurposeKEK, []byte("device-a"))
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	other, err = KeyAlias(svc, PurposeLTKeyPair, []byte("device-b"))
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	tests := []struct {
		name    string
		svc     string
		purpose Purpose
		authID  []byte
	}{
		{"empty service", "", PurposeLTKeyPair, []byte("a")},
		{"unknown purpose", svc, Purpose(99), []byte("a")},
		{"empty auth id", svc, PurposeLTKeyPair, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeyAlias(tt.svc, tt.purpose, tt.authID)
			assert.ErrorIs(t, err, status.ErrKeyAliasGenerationFailed)
		})
	}
}

package pake

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

func newPair(t *testing.T, clientCfg, serverCfg Config) (*Client, *Server) {
	t.Helper()
	c, err := NewClient(clientCfg, nil)
	require.NoError(t, err)
	s, err := NewServer(serverCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Destroy()
		s.Destroy()
	})
	return c, s
}

// run drives the exchange up to the accessory's confirmation.
func run(t *testing.T, c *Client, s *Server) error {
	t.Helper()
	req, err := c.BuildRequest()
	require.NoError(t, err)
	resp, err := s.HandleRequest(req)
	if err != nil {
		return err
	}
	confirm, err := c.HandleResponse(resp)
	if err != nil {
		return err
	}
	if err := s.HandleConfirm(confirm); err != nil {
		return err
	}
	kcf, err := s.ServerConfirmation()
	require.NoError(t, err)
	return c.VerifyServerConfirm(kcf)
}

func TestSessionKeysMatch(t *testing.T) {
	c, s := newPair(t, Config{PIN: []byte("123456")}, Config{PIN: []byte("123456")})
	require.NoError(t, run(t, c, s))

	ck, sk := c.State().SessionKey, s.State().SessionKey
	assert.Len(t, ck, SessionKeyLength)
	assert.Equal(t, ck, sk)
	assert.Equal(t, c.State().SelfChallenge, s.State().PeerChallenge)
	assert.Equal(t, s.State().SelfChallenge, c.State().PeerChallenge)
	assert.Equal(t, message.DefaultVersion, c.State().Version)
}

func TestLongerKeyLength(t *testing.T) {
	c, s := newPair(t, Config{PIN: []byte("1"), KeyLength: 48}, Config{PIN: []byte("1"), KeyLength: 48})
	require.NoError(t, run(t, c, s))
	assert.Len(t, c.State().SessionKey, 48)
	assert.Equal(t, c.State().SessionKey, s.State().SessionKey)
}

func TestWrongPIN(t *testing.T) {
	c, s := newPair(t, Config{PIN: []byte("123456")}, Config{PIN: []byte("654321")})
	err := run(t, c, s)
	assert.ErrorIs(t, err, status.ErrConfirmationFailed)
	assert.Nil(t, s.State().SessionKey)
}

func TestKeyTooShort(t *testing.T) {
	c, s := newPair(t, Config{PIN: []byte("1"), KeyLength: 16}, Config{PIN: []byte("1")})
	err := run(t, c, s)
	assert.ErrorIs(t, err, status.ErrSessionKeyTooShort)
	assert.Nil(t, c.State().SessionKey)
}

func TestDeriveSessionKey(t *testing.T) {
	ke := bytes.Repeat([]byte{1}, 16)
	salt := []byte("salt")
	cC, cA := bytes.Repeat([]byte{2}, 16), bytes.Repeat([]byte{3}, 16)

	k1, err := DeriveSessionKey(ke, salt, cC, cA, 32)
	require.NoError(t, err)
	k2, err := DeriveSessionKey(ke, salt, cC, cA, 32)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	swapped, err := DeriveSessionKey(ke, salt, cA, cC, 32)
	require.NoError(t, err)
	assert.NotEqual(t, k1, swapped)

	_, err = DeriveSessionKey(nil, salt, cC, cA, 32)
	assert.ErrorIs(t, err, status.ErrSessionKeyMissing)
	_, err = DeriveSessionKey(ke, salt, cC, cA, 31)
	assert.ErrorIs(t, err, status.ErrSessionKeyTooShort)
}

func TestVersionMismatch(t *testing.T) {
	newer := message.VersionRange{Current: message.Version{Major: 3}, Min: message.Version{Major: 2}}
	c, s := newPair(t, Config{PIN: []byte("1")}, Config{PIN: []byte("1"), Versions: newer})
	req, err := c.BuildRequest()
	require.NoError(t, err)
	_, err = s.HandleRequest(req)
	assert.ErrorIs(t, err, status.ErrVersionMismatch)
}

func TestClientRejectsVersionOutsideRange(t *testing.T) {
	c, s := newPair(t, Config{PIN: []byte("1")}, Config{PIN: []byte("1")})
	req, _ := c.BuildRequest()
	resp, err := s.HandleRequest(req)
	require.NoError(t, err)

	resp.Version.Current = message.Version{Major: 2}
	_, err = c.HandleResponse(resp)
	assert.ErrorIs(t, err, status.ErrVersionMismatch)
}

func TestClientRejectsBadLengths(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*message.PakeResponse)
	}{
		{"short challenge", func(r *message.PakeResponse) { r.Challenge = r.Challenge[:15] }},
		{"empty salt", func(r *message.PakeResponse) { r.Salt = nil }},
		{"long salt", func(r *message.PakeResponse) { r.Salt = make([]byte, 33) }},
		{"long epk", func(r *message.PakeResponse) { r.EPK = append(r.EPK, 0) }},
		{"bad point", func(r *message.PakeResponse) { r.EPK = make([]byte, 65) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := newPair(t, Config{PIN: []byte("1")}, Config{PIN: []byte("1")})
			req, _ := c.BuildRequest()
			resp, err := s.HandleRequest(req)
			require.NoError(t, err)
			tt.mutate(resp)
			_, err = c.HandleResponse(resp)
			assert.ErrorIs(t, err, status.ErrMalformedPayload)
		})
	}
}

func TestOutOfOrder(t *testing.T) {
	c, s := newPair(t, Config{PIN: []byte("1")}, Config{PIN: []byte("1")})
	_, err := c.HandleResponse(&message.PakeResponse{})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, s.HandleConfirm(&message.PakeClientConfirm{}), ErrInvalidState)
	_, err = s.ServerConfirmation()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, c.VerifyServerConfirm(nil), ErrInvalidState)
}

func TestEmptyPIN(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.ErrorIs(t, err, ErrEmptyPIN)
	_, err = NewServer(Config{}, nil)
	assert.ErrorIs(t, err, ErrEmptyPIN)
}

func TestDestroyWipesKey(t *testing.T) {
	c, s := newPair(t, Config{PIN: []byte("1")}, Config{PIN: []byte("1")})
	require.NoError(t, run(t, c, s))
	key := c.State().SessionKey
	c.Destroy()
	assert.Equal(t, make([]byte, len(key)), key)
	assert.Nil(t, c.State().SessionKey)
}

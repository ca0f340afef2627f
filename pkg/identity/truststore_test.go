package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/status"
)

// mapBackend is a minimal Backend; fail makes PutDevice return an error.
type mapBackend struct {
	entries map[string]*DeviceEntry
	fail    bool
}

func newMapBackend() *mapBackend {
	return &mapBackend{entries: make(map[string]*DeviceEntry)}
}

func (b *mapBackend) LoadDevices() ([]*DeviceEntry, error) {
	var out []*DeviceEntry
	for _, e := range b.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (b *mapBackend) PutDevice(key string, e *DeviceEntry) error {
	if b.fail {
		return errors.New("disk full")
	}
	b.entries[key] = e.Clone()
	return nil
}

func (b *mapBackend) DeleteDevice(key string) error {
	delete(b.entries, key)
	return nil
}

func testLTPK(t *testing.T) []byte {
	t.Helper()
	kp, err := crypto.P256GenerateKeyPair()
	require.NoError(t, err)
	return kp.PublicKey()
}

func TestTrustStoreSaveAndResolve(t *testing.T) {
	backend := newMapBackend()
	ts, err := NewTrustStore(TrustStoreConfig{Backend: backend})
	require.NoError(t, err)

	ltpk := testLTPK(t)
	info := &AuthInfoCache{UserType: keystore.UserTypeController, AuthID: []byte("centre"), LTPK: ltpk}
	require.NoError(t, ts.SaveAuthInfo(PairTypeBind, "group", info))

	assert.True(t, ts.IsTrusted("group", []byte("centre")))
	assert.False(t, ts.IsTrusted("other", []byte("centre")))

	e, err := ts.ResolvePeerDeviceEntry(AccountUnrelated, "group", []byte("centre"))
	require.NoError(t, err)
	assert.Equal(t, ltpk, e.LTPK)
	assert.Equal(t, keystore.UserTypeController, e.UserType)

	// Returned entries are copies.
	e.LTPK[1] ^= 0xff
	again, _ := ts.ResolvePeerDeviceEntry(AccountUnrelated, "group", []byte("centre"))
	assert.Equal(t, ltpk, again.LTPK)

	// A second store over the same backend sees the entry.
	reopened, err := NewTrustStore(TrustStoreConfig{Backend: backend})
	require.NoError(t, err)
	assert.True(t, reopened.IsTrusted("group", []byte("centre")))
}

func TestTrustStoreFailedWriteLeavesNoRecord(t *testing.T) {
	backend := newMapBackend()
	backend.fail = true
	ts, err := NewTrustStore(TrustStoreConfig{Backend: backend})
	require.NoError(t, err)

	info := &AuthInfoCache{UserType: keystore.UserTypeAccessory, AuthID: []byte("acc"), LTPK: testLTPK(t)}
	assert.Error(t, ts.SaveAuthInfo(PairTypeBind, "group", info))
	assert.False(t, ts.IsTrusted("group", []byte("acc")))
}

func TestTrustStoreRejectsBadAuthInfo(t *testing.T) {
	ts, err := NewTrustStore(TrustStoreConfig{})
	require.NoError(t, err)

	tests := []struct {
		name string
		info *AuthInfoCache
	}{
		{"nil", nil},
		{"no auth id", &AuthInfoCache{LTPK: testLTPK(t)}},
		{"bad key", &AuthInfoCache{AuthID: []byte("x"), LTPK: []byte{4, 1, 2}}},
		{"bad user type", &AuthInfoCache{AuthID: []byte("x"), LTPK: testLTPK(t), UserType: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ts.SaveAuthInfo(PairTypeBind, "group", tt.info), status.ErrMalformedPayload)
		})
	}
}

func TestTrustStoreSelfEntry(t *testing.T) {
	ts, err := NewTrustStore(TrustStoreConfig{})
	require.NoError(t, err)

	_, err = ts.ResolveSelfDeviceEntry(AccountUnrelated, "group")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	require.NoError(t, ts.SaveSelfDeviceEntry(&DeviceEntry{GroupID: "group", AuthID: []byte("me"), LTPK: testLTPK(t)}))
	self, err := ts.ResolveSelfDeviceEntry(AccountUnrelated, "group")
	require.NoError(t, err)
	assert.True(t, self.Self)
	assert.Equal(t, []byte("me"), self.AuthID)

	// Self entries are not peers.
	assert.False(t, ts.IsTrusted("group", []byte("me")))
	devices, _ := ts.ListDevices("")
	assert.Empty(t, devices)

	_, err = ts.ResolveSelfDeviceEntry(Account(1), "group")
	assert.ErrorIs(t, err, status.ErrUnsupportedOperation)
}

func TestTrustStoreListAndDelete(t *testing.T) {
	ts, err := NewTrustStore(TrustStoreConfig{})
	require.NoError(t, err)

	for _, id := range []string{"b", "a", "c"} {
		info := &AuthInfoCache{AuthID: []byte(id), LTPK: testLTPK(t)}
		require.NoError(t, ts.SaveAuthInfo(PairTypeBind, "g1", info))
	}
	require.NoError(t, ts.SaveAuthInfo(PairTypeBind, "g2", &AuthInfoCache{AuthID: []byte("z"), LTPK: testLTPK(t)}))

	devices, err := ts.ListDevices("g1")
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, []byte("a"), devices[0].AuthID)
	assert.Equal(t, []byte("c"), devices[2].AuthID)

	all, _ := ts.ListDevices("")
	assert.Len(t, all, 4)

	require.NoError(t, ts.DeleteDevice("g1", []byte("b")))
	assert.False(t, ts.IsTrusted("g1", []byte("b")))
	assert.ErrorIs(t, ts.DeleteDevice("g1", []byte("b")), ErrDeviceNotFound)
}

func TestTrustStoreCapacity(t *testing.T) {
	ts, err := NewTrustStore(TrustStoreConfig{MaxDevices: 1})
	require.NoError(t, err)

	first := &AuthInfoCache{AuthID: []byte("a"), LTPK: testLTPK(t)}
	require.NoError(t, ts.SaveAuthInfo(PairTypeBind, "g", first))
	// Updating an existing entry does not count against the limit.
	require.NoError(t, ts.SaveAuthInfo(PairTypeAuth, "g", first))

	err = ts.SaveAuthInfo(PairTypeBind, "g", &AuthInfoCache{AuthID: []byte("b"), LTPK: testLTPK(t)})
	assert.ErrorIs(t, err, status.ErrResourceExhausted)
}

func TestResolveIdentityInfo(t *testing.T) {
	ts, err := NewTrustStore(TrustStoreConfig{})
	require.NoError(t, err)
	ltpk := testLTPK(t)
	require.NoError(t, ts.SaveAuthInfo(PairTypeBind, "g", &AuthInfoCache{AuthID: []byte("peer"), LTPK: ltpk}))

	pin, err := ts.ResolveIdentityInfo(KeyTypeSymmetric, TrustTypePin, "g")
	require.NoError(t, err)
	require.Equal(t, 1, pin.Len())
	assert.True(t, pin.Get(0).Supports(ProtocolPake))
	pin.Destroy()

	devs, err := ts.ResolveIdentityInfo(KeyTypeAsymmetric, TrustTypeDevice, "g")
	require.NoError(t, err)
	require.Equal(t, 1, devs.Len())
	info := devs.Get(0)
	assert.True(t, info.Supports(ProtocolSTS))
	assert.Equal(t, ltpk, info.Proof)
	proof := info.Proof
	devs.Destroy()
	assert.Equal(t, make([]byte, len(proof)), proof)

	// The store's copy is unaffected by destroying the list.
	e, err := ts.ResolvePeerDeviceEntry(AccountUnrelated, "g", []byte("peer"))
	require.NoError(t, err)
	assert.Equal(t, ltpk, e.LTPK)

	_, err = ts.ResolveIdentityInfo(KeyTypeSymmetric, TrustTypeDevice, "g")
	assert.ErrorIs(t, err, status.ErrUnsupportedOperation)
}

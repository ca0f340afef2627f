package keystore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/status"
	"github.com/backkem/hichain/pkg/storage"
)

func newSoftware(t *testing.T) *keystore.Software {
	t.Helper()
	ks, err := keystore.NewSoftware(keystore.SoftwareConfig{Storage: storage.NewMemory()})
	require.NoError(t, err)
	return ks
}

func TestSoftwareKeyLifecycle(t *testing.T) {
	ks := newSoftware(t)

	has, err := ks.HasKey("alias")
	require.NoError(t, err)
	assert.False(t, has)

	pk, err := ks.GenerateKeyPair("alias")
	require.NoError(t, err)
	assert.Len(t, pk, 65)

	_, err = ks.GenerateKeyPair("alias")
	assert.ErrorIs(t, err, keystore.ErrKeyExists)

	exported, err := ks.ExportPublicKey("alias")
	require.NoError(t, err)
	assert.Equal(t, pk, exported)

	require.NoError(t, ks.DeleteKey("alias"))
	require.NoError(t, ks.DeleteKey("alias"))
	_, err = ks.ExportPublicKey("alias")
	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
}

func TestSoftwareSignVerify(t *testing.T) {
	ks := newSoftware(t)
	pk, err := ks.GenerateKeyPair("lt")
	require.NoError(t, err)

	data := []byte("challenge || authInfo")
	sig, err := ks.Sign("lt", data)
	require.NoError(t, err)

	assert.NoError(t, ks.Verify(keystore.UserTypeController, data, pk, sig))
	assert.NoError(t, ks.Verify(keystore.UserTypeAccessory, data, pk, sig))
	assert.ErrorIs(t, ks.Verify(keystore.UserType(7), data, pk, sig), status.ErrSignatureInvalid)

	sig[0] ^= 0x80
	assert.ErrorIs(t, ks.Verify(keystore.UserTypeController, data, pk, sig), status.ErrSignatureInvalid)

	_, err = ks.Sign("missing", data)
	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
}

func TestSoftwareEncryptDecrypt(t *testing.T) {
	ks := newSoftware(t)
	key := make([]byte, 32)
	key[0] = 1

	ct, err := ks.Encrypt(key, []byte("hello"), "hichain_exchange_request")
	require.NoError(t, err)

	pt, err := ks.Decrypt(key, ct, "hichain_exchange_request")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	_, err = ks.Decrypt(key, ct, "hichain_exchange_response")
	assert.ErrorIs(t, err, status.ErrDecryptFailed)

	_, err = ks.Encrypt(nil, []byte("x"), "t")
	assert.ErrorIs(t, err, status.ErrSessionKeyMissing)
}

func TestNewSoftwareRequiresStorage(t *testing.T) {
	_, err := keystore.NewSoftware(keystore.SoftwareConfig{})
	assert.Error(t, err)
}

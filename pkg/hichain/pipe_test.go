package hichain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/session"
	"github.com/backkem/hichain/pkg/storage"
	"github.com/backkem/hichain/pkg/transport"
)

// linkHost sends over a transport link and records outcomes.
type linkHost struct {
	link   *transport.Link
	params ProtocolParams

	mu      sync.Mutex
	keys    map[uint64][]byte
	results map[uint64]Result
}

func (h *linkHost) Transmit(id Identity, data []byte) error {
	return h.link.Send(id.SessionID, data)
}

func (h *linkHost) GetProtocolParams(Identity, session.Operation) (*ProtocolParams, error) {
	p := h.params
	return &p, nil
}

func (h *linkHost) SetSessionKey(id Identity, key []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys[id.SessionID] = key
	return nil
}

func (h *linkHost) SetServiceResult(id Identity, r Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results[id.SessionID] = r
	return nil
}

func (h *linkHost) ConfirmReceiveRequest(Identity, session.Operation) bool { return true }

func (h *linkHost) result(id uint64) (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.results[id]
	return r, ok
}

func (h *linkHost) key(id uint64) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.keys[id]
}

func newLinkHost(t *testing.T, authID string, userType keystore.UserType) (*linkHost, *Instance) {
	t.Helper()
	ks, err := keystore.NewSoftware(keystore.SoftwareConfig{Storage: storage.NewMemory()})
	require.NoError(t, err)
	store, err := identity.NewTrustStore(identity.TrustStoreConfig{})
	require.NoError(t, err)
	h := &linkHost{
		params:  ProtocolParams{SelfAuthID: []byte(authID), SelfUserType: userType, PIN: []byte("314159")},
		keys:    make(map[uint64][]byte),
		results: make(map[uint64]Result),
	}
	inst, err := New(Config{Keystore: ks, Store: store, Callbacks: h})
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close() })
	return h, inst
}

func TestBindAndAuthOverPipe(t *testing.T) {
	phoneHost, phone := newLinkHost(t, "phone", keystore.UserTypeController)
	lampHost, lamp := newLinkHost(t, "lamp", keystore.UserTypeAccessory)

	deliver := func(inst *Instance) transport.FrameHandler {
		return func(_ *transport.Link, f *transport.Frame) {
			inst.ReceiveData(Identity{SessionID: f.SessionID, PackageName: pkgName, ServiceType: svcType}, f.Data)
		}
	}
	pair, err := transport.NewLinkPair(transport.DefaultPipeConfig(),
		[2]transport.FrameHandler{deliver(phone), deliver(lamp)}, nil)
	require.NoError(t, err)
	defer pair.Close()
	phoneHost.link = pair.Link(0)
	lampHost.link = pair.Link(1)

	done := func(h *linkHost, id uint64) func() bool {
		return func() bool { _, ok := h.result(id); return ok }
	}

	bindID := phone.NextSessionID()
	require.NoError(t, phone.StartBind(ident(bindID)))
	require.Eventually(t, done(phoneHost, bindID), 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, done(lampHost, bindID), 5*time.Second, 5*time.Millisecond)

	r, _ := phoneHost.result(bindID)
	require.True(t, r.OK(), "phone result %s", r.Code)
	r, _ = lampHost.result(bindID)
	require.True(t, r.OK(), "lamp result %s", r.Code)
	assert.Equal(t, phoneHost.key(bindID), lampHost.key(bindID))

	phoneHost.params.PeerAuthID = []byte("lamp")
	authID := phone.NextSessionID()
	require.NotEqual(t, bindID, authID)
	require.NoError(t, phone.StartAuth(ident(authID)))
	require.Eventually(t, done(phoneHost, authID), 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, done(lampHost, authID), 5*time.Second, 5*time.Millisecond)

	r, _ = phoneHost.result(authID)
	require.True(t, r.OK(), "phone result %s", r.Code)
	assert.Len(t, phoneHost.key(authID), 32)
	assert.Equal(t, phoneHost.key(authID), lampHost.key(authID))
}

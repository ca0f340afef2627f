package hichain

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/session"
	"github.com/backkem/hichain/pkg/status"
	"github.com/backkem/hichain/pkg/storage"
)

const (
	pkgName = "com.example.home"
	svcType = "light"
)

type frame struct {
	id   Identity
	data []byte
}

// testHost queues outbound frames so tests can pump them deterministically.
type testHost struct {
	mu      sync.Mutex
	outbox  []frame
	params  ProtocolParams
	accept  bool
	keys    map[uint64][]byte
	results map[uint64]Result
}

func (h *testHost) Transmit(id Identity, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outbox = append(h.outbox, frame{id, append([]byte(nil), data...)})
	return nil
}

func (h *testHost) GetProtocolParams(id Identity, op session.Operation) (*ProtocolParams, error) {
	p := h.params
	return &p, nil
}

func (h *testHost) SetSessionKey(id Identity, key []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys[id.SessionID] = key
	return nil
}

func (h *testHost) SetServiceResult(id Identity, result Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results[id.SessionID] = result
	return nil
}

func (h *testHost) ConfirmReceiveRequest(id Identity, op session.Operation) bool {
	return h.accept
}

func (h *testHost) take() []frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.outbox
	h.outbox = nil
	return out
}

type node struct {
	host  *testHost
	inst  *Instance
	store *identity.TrustStore
	reg   *prometheus.Registry
}

func newNode(t *testing.T, authID string, userType keystore.UserType, pin string, cfg Config) *node {
	t.Helper()
	ks, err := keystore.NewSoftware(keystore.SoftwareConfig{Storage: storage.NewMemory()})
	require.NoError(t, err)
	store, err := identity.NewTrustStore(identity.TrustStoreConfig{})
	require.NoError(t, err)
	host := &testHost{
		params:  ProtocolParams{SelfAuthID: []byte(authID), SelfUserType: userType, PIN: []byte(pin)},
		accept:  true,
		keys:    make(map[uint64][]byte),
		results: make(map[uint64]Result),
	}
	reg := prometheus.NewRegistry()
	cfg.Keystore = ks
	cfg.Store = store
	cfg.Callbacks = host
	cfg.Registerer = reg
	inst, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close() })
	return &node{host: host, inst: inst, store: store, reg: reg}
}

// pump delivers queued frames in both directions until the link is idle.
func pump(t *testing.T, a, b *node) {
	t.Helper()
	for round := 0; round < 16; round++ {
		fromA, fromB := a.host.take(), b.host.take()
		if len(fromA) == 0 && len(fromB) == 0 {
			return
		}
		for _, f := range fromA {
			b.inst.ReceiveData(f.id, f.data)
		}
		for _, f := range fromB {
			a.inst.ReceiveData(f.id, f.data)
		}
	}
	t.Fatal("link did not go idle")
}

func ident(sessionID uint64) Identity {
	return Identity{SessionID: sessionID, PackageName: pkgName, ServiceType: svcType}
}

func groupID(t *testing.T) string {
	t.Helper()
	g, err := keystore.ServiceID(pkgName, svcType)
	require.NoError(t, err)
	return g
}

func TestBindThenAuth(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "246810", Config{})
	lamp := newNode(t, "lamp", keystore.UserTypeAccessory, "246810", Config{})

	require.NoError(t, phone.inst.StartBind(ident(1)))
	pump(t, phone, lamp)

	require.True(t, phone.host.results[1].OK())
	require.True(t, lamp.host.results[1].OK())
	assert.Equal(t, []byte("lamp"), phone.host.results[1].PeerAuthID)
	assert.Equal(t, []byte("phone"), lamp.host.results[1].PeerAuthID)
	assert.Len(t, phone.host.keys[1], 32)
	assert.Equal(t, phone.host.keys[1], lamp.host.keys[1])
	assert.Zero(t, phone.inst.ActiveSessions())
	assert.Zero(t, lamp.inst.ActiveSessions())

	assert.True(t, phone.inst.IsTrusted(pkgName, svcType, []byte("lamp")))
	assert.True(t, lamp.inst.IsTrusted(pkgName, svcType, []byte("phone")))
	devices, err := lamp.inst.TrustedDevices(pkgName, svcType)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, keystore.UserTypeController, devices[0].UserType)

	self, err := phone.store.ResolveSelfDeviceEntry(identity.AccountUnrelated, groupID(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("phone"), self.AuthID)
	assert.Len(t, self.LTPK, 65)

	assert.Equal(t, 1.0, testutil.ToFloat64(phone.inst.metrics.established.WithLabelValues("Bind")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lamp.inst.metrics.started.WithLabelValues("Accessory", "Bind")))

	phone.host.params.PeerAuthID = []byte("lamp")
	require.NoError(t, phone.inst.StartAuth(ident(2)))
	pump(t, phone, lamp)

	require.True(t, phone.host.results[2].OK())
	require.True(t, lamp.host.results[2].OK())
	assert.Equal(t, phone.host.keys[2], lamp.host.keys[2])
	assert.NotEqual(t, phone.host.keys[1], phone.host.keys[2])
}

func TestWrongPIN(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "111111", Config{})
	lamp := newNode(t, "lamp", keystore.UserTypeAccessory, "222222", Config{})

	require.NoError(t, phone.inst.StartBind(ident(7)))
	pump(t, phone, lamp)

	assert.Equal(t, status.CodeConfirmationFailed, lamp.host.results[7].Code)
	assert.Equal(t, status.CodePeerAborted, phone.host.results[7].Code)
	assert.Empty(t, phone.host.keys)
	assert.False(t, lamp.inst.IsTrusted(pkgName, svcType, []byte("phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lamp.inst.metrics.failed.WithLabelValues("ConfirmationFailed")))
}

func TestRequestRejectedByHost(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{})
	lamp := newNode(t, "lamp", keystore.UserTypeAccessory, "1", Config{})
	lamp.host.accept = false

	require.NoError(t, phone.inst.StartBind(ident(3)))
	pump(t, phone, lamp)

	assert.Equal(t, status.CodePeerRejected, lamp.host.results[3].Code)
	assert.Equal(t, status.CodePeerAborted, phone.host.results[3].Code)
	assert.Zero(t, lamp.inst.ActiveSessions())
	assert.Zero(t, phone.inst.ActiveSessions())
}

func TestDisabledOperation(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{})
	lamp := newNode(t, "lamp", keystore.UserTypeAccessory, "1", Config{
		Capabilities: &session.Capabilities{Auth: true},
	})

	require.NoError(t, phone.inst.StartBind(ident(4)))
	pump(t, phone, lamp)

	assert.Equal(t, status.CodeUnsupportedOperation, lamp.host.results[4].Code)
	assert.Equal(t, status.CodePeerAborted, phone.host.results[4].Code)
}

func TestAuthWithoutBind(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "", Config{})
	phone.host.params.PeerAuthID = []byte("lamp")

	err := phone.inst.StartAuth(ident(5))
	assert.ErrorIs(t, err, status.ErrPeerNotTrusted)
	assert.Equal(t, status.CodePeerNotTrusted, phone.host.results[5].Code)
	assert.Empty(t, phone.host.take())
}

func TestMaxSessions(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{MaxSessions: 1})

	require.NoError(t, phone.inst.StartBind(ident(1)))
	err := phone.inst.StartBind(ident(2))
	assert.ErrorIs(t, err, status.ErrResourceExhausted)
	assert.Equal(t, status.CodeResourceExhausted, phone.host.results[2].Code)

	err = phone.inst.StartBind(ident(1))
	assert.ErrorIs(t, err, ErrSessionExists)
	assert.Equal(t, 1, phone.inst.ActiveSessions())
}

func TestMalformedData(t *testing.T) {
	lamp := newNode(t, "lamp", keystore.UserTypeAccessory, "1", Config{})

	err := lamp.inst.ReceiveData(ident(9), []byte(`{"message":1}`))
	assert.ErrorIs(t, err, status.ErrMalformedPayload)

	sent := lamp.host.take()
	require.Len(t, sent, 1)
	msg, err := message.Unmarshal(sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, int(status.CodeMalformedPayload), msg.Payload.(*message.Inform).ErrorCode)
	assert.Zero(t, lamp.inst.ActiveSessions())
}

func TestUnexpectedFirstMessage(t *testing.T) {
	lamp := newNode(t, "lamp", keystore.UserTypeAccessory, "1", Config{})
	data, err := message.Marshal(message.New(&message.AuthAck{AuthData: message.HexBytes{1}}))
	require.NoError(t, err)

	err = lamp.inst.ReceiveData(ident(9), data)
	assert.ErrorIs(t, err, status.ErrUnexpectedMessage)
	assert.Len(t, lamp.host.take(), 1)

	// A stray inform is dropped silently.
	data, err = message.Marshal(message.NewInform(status.CodeInternal))
	require.NoError(t, err)
	assert.NoError(t, lamp.inst.ReceiveData(ident(9), data))
	assert.Empty(t, lamp.host.take())
}

func TestUnbind(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{})
	lamp := newNode(t, "lamp", keystore.UserTypeAccessory, "1", Config{})
	require.NoError(t, phone.inst.StartBind(ident(1)))
	pump(t, phone, lamp)
	require.True(t, phone.inst.IsTrusted(pkgName, svcType, []byte("lamp")))

	phone.host.params.PeerAuthID = []byte("lamp")
	require.NoError(t, phone.inst.Unbind(ident(2)))
	assert.True(t, phone.host.results[2].OK())
	assert.False(t, phone.inst.IsTrusted(pkgName, svcType, []byte("lamp")))

	err := phone.inst.Unbind(ident(3))
	assert.ErrorIs(t, err, identity.ErrDeviceNotFound)
	assert.Equal(t, status.CodePeerNotTrusted, phone.host.results[3].Code)
}

func TestCloseSession(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{})
	require.NoError(t, phone.inst.StartBind(ident(1)))
	phone.host.take()

	require.NoError(t, phone.inst.CloseSession(1))
	assert.Equal(t, status.CodePeerRejected, phone.host.results[1].Code)
	assert.Len(t, phone.host.take(), 1)
	assert.ErrorIs(t, phone.inst.CloseSession(1), ErrSessionNotFound)
}

func TestClosedInstance(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{})
	require.NoError(t, phone.inst.StartBind(ident(1)))
	require.NoError(t, phone.inst.Close())
	assert.Zero(t, phone.inst.ActiveSessions())
	assert.ErrorIs(t, phone.inst.StartBind(ident(2)), ErrClosed)
	assert.ErrorIs(t, phone.inst.ReceiveData(ident(2), nil), ErrClosed)
}

func TestCloseWithReceiveInFlight(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{})
	require.NoError(t, phone.inst.StartBind(ident(1)))
	phone.host.take()

	// A receive that found its entry before Close drained the registry.
	e := phone.inst.sessions.find(1)
	require.NotNil(t, e)
	require.NoError(t, phone.inst.Close())

	e.mu.Lock()
	out, err := e.sess.OnReceive(message.New(&message.PakeResponse{}))
	terminal := e.sess.State().Terminal()
	e.mu.Unlock()
	assert.Nil(t, out)
	assert.ErrorIs(t, err, session.ErrSessionTerminated)
	require.True(t, terminal)

	phone.inst.finish(e)
	assert.NotContains(t, phone.host.results, uint64(1))
	assert.Empty(t, phone.host.take())
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrKeystoreRequired)
}

func TestMetricsRegistered(t *testing.T) {
	phone := newNode(t, "phone", keystore.UserTypeController, "1", Config{})
	require.NoError(t, phone.inst.StartBind(ident(1)))
	n, err := testutil.GatherAndCount(phone.reg, "hichain_sessions_started_total", "hichain_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

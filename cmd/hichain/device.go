package main

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/backkem/hichain/pkg/config"
	"github.com/backkem/hichain/pkg/hichain"
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/session"
	"github.com/backkem/hichain/pkg/storage"
	"github.com/backkem/hichain/pkg/transport"
)

var errNoConfig = errors.New("config file must be specified with -c/--config")

// loadConfig reads the configuration named by the global flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	if g.ConfigFile == "" {
		return nil, errNoConfig
	}
	cfg, err := config.Load(g.ConfigFile)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// device is one engine instance with its storage and the host side of the
// callbacks: it routes transmits to the link a session arrived on and hands
// results to whoever waits for them.
type device struct {
	cfg      *config.Config
	userType keystore.UserType
	store    storage.Storage
	inst     *hichain.Instance
	registry *prometheus.Registry
	out      io.Writer
	log      logging.LeveledLogger

	// Set by the command before sessions start.
	pin    []byte
	peerID []byte

	mu      sync.Mutex
	links   map[uint64]*transport.Link
	waiters map[uint64]chan hichain.Result
}

func openDevice(cfg *config.Config, out io.Writer) (*device, error) {
	lf := cfg.LoggerFactory(os.Stderr)
	userType, err := cfg.UserType()
	if err != nil {
		return nil, err
	}
	versions, err := cfg.Versions()
	if err != nil {
		return nil, err
	}
	caps, err := cfg.CapabilitySet()
	if err != nil {
		return nil, err
	}

	var st storage.Storage = storage.NewMemory()
	if cfg.Storage.Path != "" {
		if st, err = storage.OpenBolt(cfg.Storage.Path); err != nil {
			return nil, err
		}
	}
	ks, err := keystore.NewSoftware(keystore.SoftwareConfig{Storage: st, LoggerFactory: lf})
	if err != nil {
		st.Close()
		return nil, err
	}
	ts, err := identity.NewTrustStore(identity.TrustStoreConfig{Backend: st, LoggerFactory: lf})
	if err != nil {
		st.Close()
		return nil, err
	}

	d := &device{
		cfg:      cfg,
		userType: userType,
		store:    st,
		registry: prometheus.NewRegistry(),
		out:      out,
		log:      lf.NewLogger("hichain-cli"),
		links:    make(map[uint64]*transport.Link),
		waiters:  make(map[uint64]chan hichain.Result),
	}
	d.inst, err = hichain.New(hichain.Config{
		Keystore:      ks,
		Store:         ts,
		Callbacks:     d,
		Capabilities:  &caps,
		Versions:      versions,
		KeyLength:     cfg.Protocol.KeyLength,
		MaxSessions:   cfg.MaxSessions,
		Registerer:    d.registry,
		LoggerFactory: lf,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return d, nil
}

func (d *device) Close() error {
	d.inst.Close()
	return d.store.Close()
}

func (d *device) identity(sessionID uint64) hichain.Identity {
	return hichain.Identity{
		SessionID:   sessionID,
		PackageName: d.cfg.Device.PackageName,
		ServiceType: d.cfg.Device.ServiceType,
	}
}

// handleFrame is the transport.FrameHandler of every link of the device.
func (d *device) handleFrame(l *transport.Link, f *transport.Frame) {
	d.mu.Lock()
	d.links[f.SessionID] = l
	d.mu.Unlock()
	if err := d.inst.ReceiveData(d.identity(f.SessionID), f.Data); err != nil {
		d.log.Debugf("session %d: %v", f.SessionID, err)
	}
}

// expect registers a waiter for the result of a session started locally.
func (d *device) expect(sessionID uint64, l *transport.Link) <-chan hichain.Result {
	ch := make(chan hichain.Result, 1)
	d.mu.Lock()
	d.links[sessionID] = l
	d.waiters[sessionID] = ch
	d.mu.Unlock()
	return ch
}

func (d *device) Transmit(id hichain.Identity, data []byte) error {
	d.mu.Lock()
	l := d.links[id.SessionID]
	d.mu.Unlock()
	if l == nil {
		return fmt.Errorf("no link for session %d", id.SessionID)
	}
	return l.Send(id.SessionID, data)
}

func (d *device) GetProtocolParams(id hichain.Identity, op session.Operation) (*hichain.ProtocolParams, error) {
	return &hichain.ProtocolParams{
		SelfAuthID:   []byte(d.cfg.Device.AuthID),
		SelfUserType: d.userType,
		PeerAuthID:   d.peerID,
		PIN:          d.pin,
	}, nil
}

func (d *device) SetSessionKey(id hichain.Identity, key []byte) error {
	sum := sha256.Sum256(key)
	fmt.Fprintf(d.out, "session %d: %d-byte key, fingerprint %x\n", id.SessionID, len(key), sum[:8])
	return nil
}

func (d *device) SetServiceResult(id hichain.Identity, r hichain.Result) error {
	if r.OK() {
		fmt.Fprintf(d.out, "session %d: %s with %q succeeded\n", id.SessionID, id.OperationCode, r.PeerAuthID)
	} else {
		fmt.Fprintf(d.out, "session %d: %s failed: %s\n", id.SessionID, id.OperationCode, r.Code)
	}

	d.mu.Lock()
	ch := d.waiters[id.SessionID]
	delete(d.waiters, id.SessionID)
	delete(d.links, id.SessionID)
	d.mu.Unlock()
	if ch != nil {
		ch <- r
	}
	return nil
}

func (d *device) ConfirmReceiveRequest(id hichain.Identity, op session.Operation) bool {
	if op == session.OperationBind && len(d.pin) == 0 {
		fmt.Fprintf(d.out, "session %d: rejecting bind, no PIN configured\n", id.SessionID)
		return false
	}
	return true
}

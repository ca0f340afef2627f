package identity

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/status"
)

// TrustStoreConfig configures a TrustStore.
type TrustStoreConfig struct {
	// Backend persists entries. If nil, entries live in memory only.
	Backend Backend

	// MaxDevices bounds the number of peer entries. Zero means 256.
	MaxDevices int

	// LoggerFactory for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultMaxDevices is the peer entry limit when none is configured.
const DefaultMaxDevices = 256

// TrustStore is the Store implementation. Reads are served from memory; every
// write goes to the backend first and is published in memory only after the
// backend accepted it, so a failed write leaves no visible record.
//
// All methods are safe for concurrent use.
type TrustStore struct {
	mu         sync.RWMutex
	entries    map[string]*DeviceEntry
	backend    Backend
	maxDevices int
	log        logging.LeveledLogger
}

var _ Store = (*TrustStore)(nil)

// NewTrustStore creates a store and loads the backend's entries.
func NewTrustStore(cfg TrustStoreConfig) (*TrustStore, error) {
	if cfg.MaxDevices <= 0 {
		cfg.MaxDevices = DefaultMaxDevices
	}
	t := &TrustStore{
		entries:    make(map[string]*DeviceEntry),
		backend:    cfg.Backend,
		maxDevices: cfg.MaxDevices,
	}
	if cfg.LoggerFactory != nil {
		t.log = cfg.LoggerFactory.NewLogger("truststore")
	}
	if t.backend != nil {
		loaded, err := t.backend.LoadDevices()
		if err != nil {
			return nil, fmt.Errorf("identity: load devices: %w", err)
		}
		for _, e := range loaded {
			t.entries[e.key()] = e
		}
		if t.log != nil {
			t.log.Debugf("loaded %d device entries", len(loaded))
		}
	}
	return t, nil
}

// ResolveSelfDeviceEntry implements Store.
func (t *TrustStore) ResolveSelfDeviceEntry(account Account, groupID string) (*DeviceEntry, error) {
	if account != AccountUnrelated {
		return nil, fmt.Errorf("%w: account %d", status.ErrUnsupportedOperation, account)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if e.Self && e.GroupID == groupID {
			return e.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: no self entry in group %.16s", ErrDeviceNotFound, groupID)
}

// ResolvePeerDeviceEntry implements Store.
func (t *TrustStore) ResolvePeerDeviceEntry(account Account, groupID string, peerIDHint []byte) (*DeviceEntry, error) {
	if account != AccountUnrelated {
		return nil, fmt.Errorf("%w: account %d", status.ErrUnsupportedOperation, account)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[entryKey(groupID, peerIDHint, false)]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrDeviceNotFound, peerIDHint)
	}
	return e.Clone(), nil
}

// ResolveIdentityInfo implements Store. PIN trust yields a single identity
// usable with PAKE. Device trust yields one identity per bound peer with its
// ltpk as proof, usable with STS.
func (t *TrustStore) ResolveIdentityInfo(keyType KeyType, trustType TrustType, groupID string) (*IdentityInfoList, error) {
	list := NewList[*IdentityInfo]()
	switch {
	case keyType == KeyTypeSymmetric && trustType == TrustTypePin:
		protocols := NewList[*ProtocolEntity]()
		protocols.Push(&ProtocolEntity{Protocol: ProtocolPake})
		list.Push(&IdentityInfo{
			KeyType:   keyType,
			TrustType: trustType,
			GroupID:   groupID,
			Protocols: protocols,
		})
	case keyType == KeyTypeAsymmetric && trustType == TrustTypeDevice:
		t.mu.RLock()
		for _, e := range t.entries {
			if e.Self || e.GroupID != groupID {
				continue
			}
			protocols := NewList[*ProtocolEntity]()
			protocols.Push(&ProtocolEntity{Protocol: ProtocolSTS})
			list.Push(&IdentityInfo{
				KeyType:   keyType,
				TrustType: trustType,
				GroupID:   groupID,
				AuthID:    bytes.Clone(e.AuthID),
				UserType:  e.UserType,
				Proof:     bytes.Clone(e.LTPK),
				Protocols: protocols,
			})
		}
		t.mu.RUnlock()
	default:
		return nil, fmt.Errorf("%w: key type %d with trust type %d", status.ErrUnsupportedOperation, keyType, trustType)
	}
	return list, nil
}

// SaveAuthInfo implements Store.
func (t *TrustStore) SaveAuthInfo(pairType PairType, groupID string, info *AuthInfoCache) error {
	if info == nil || len(info.AuthID) == 0 || groupID == "" {
		return fmt.Errorf("%w: incomplete auth info", status.ErrMalformedPayload)
	}
	if !info.UserType.Valid() {
		return fmt.Errorf("%w: user type %d", status.ErrMalformedPayload, info.UserType)
	}
	if err := crypto.P256ValidatePublicKey(info.LTPK); err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedPayload, err)
	}
	entry := &DeviceEntry{
		GroupID:  groupID,
		AuthID:   bytes.Clone(info.AuthID),
		UserType: info.UserType,
		LTPK:     bytes.Clone(info.LTPK),
		PairType: pairType,
	}
	return t.put(entry)
}

// SaveSelfDeviceEntry implements Store.
func (t *TrustStore) SaveSelfDeviceEntry(entry *DeviceEntry) error {
	if entry == nil || len(entry.AuthID) == 0 || entry.GroupID == "" {
		return fmt.Errorf("%w: incomplete self entry", status.ErrMalformedPayload)
	}
	e := entry.Clone()
	e.Self = true
	return t.put(e)
}

func (t *TrustStore) put(entry *DeviceEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entry.key()
	if _, exists := t.entries[key]; !exists && !entry.Self && t.peerCount() >= t.maxDevices {
		return fmt.Errorf("%w: %d devices", status.ErrResourceExhausted, t.maxDevices)
	}
	if t.backend != nil {
		if err := t.backend.PutDevice(key, entry); err != nil {
			return fmt.Errorf("identity: persist device: %w", err)
		}
	}
	t.entries[key] = entry
	if t.log != nil {
		t.log.Infof("saved device %.16s in group %.16s (self=%v)", entry.AuthIDHex(), entry.GroupID, entry.Self)
	}
	return nil
}

func (t *TrustStore) peerCount() int {
	n := 0
	for _, e := range t.entries {
		if !e.Self {
			n++
		}
	}
	return n
}

// DeleteDevice implements Store.
func (t *TrustStore) DeleteDevice(groupID string, authID []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entryKey(groupID, authID, false)
	if _, ok := t.entries[key]; !ok {
		return fmt.Errorf("%w: %x", ErrDeviceNotFound, authID)
	}
	if t.backend != nil {
		if err := t.backend.DeleteDevice(key); err != nil && !errors.Is(err, ErrDeviceNotFound) {
			return fmt.Errorf("identity: delete device: %w", err)
		}
	}
	delete(t.entries, key)
	return nil
}

// ListDevices implements Store. Entries are ordered by group then auth id.
func (t *TrustStore) ListDevices(groupID string) ([]*DeviceEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*DeviceEntry
	for _, e := range t.entries {
		if e.Self || (groupID != "" && e.GroupID != groupID) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return bytes.Compare(out[i].AuthID, out[j].AuthID) < 0
	})
	return out, nil
}

// IsTrusted implements Store.
func (t *TrustStore) IsTrusted(groupID string, authID []byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.entries[entryKey(groupID, authID, false)]
	return ok
}

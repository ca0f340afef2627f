package storage

import (
	"bytes"
	"sync"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
)

// Memory keeps keys and device entries in process memory. Data is lost when
// the process exits.
//
// All methods are safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	keys    map[string][]byte
	devices map[string]*identity.DeviceEntry
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		keys:    make(map[string][]byte),
		devices: make(map[string]*identity.DeviceEntry),
	}
}

// GetKey implements keystore.KeyStorage.
func (m *Memory) GetKey(alias string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.keys[alias]
	if !ok {
		return nil, keystore.ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

// PutKey implements keystore.KeyStorage.
func (m *Memory) PutKey(alias string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.keys[alias]; ok {
		crypto.Wipe(old)
	}
	m.keys[alias] = bytes.Clone(value)
	return nil
}

// DeleteKey implements keystore.KeyStorage.
func (m *Memory) DeleteKey(alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.keys[alias]
	if !ok {
		return keystore.ErrKeyNotFound
	}
	crypto.Wipe(v)
	delete(m.keys, alias)
	return nil
}

// LoadDevices implements identity.Backend.
func (m *Memory) LoadDevices() ([]*identity.DeviceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*identity.DeviceEntry, 0, len(m.devices))
	for _, e := range m.devices {
		out = append(out, e.Clone())
	}
	return out, nil
}

// PutDevice implements identity.Backend.
func (m *Memory) PutDevice(key string, entry *identity.DeviceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices[key] = entry.Clone()
	return nil
}

// DeleteDevice implements identity.Backend.
func (m *Memory) DeleteDevice(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[key]; !ok {
		return identity.ErrDeviceNotFound
	}
	delete(m.devices, key)
	return nil
}

// Close wipes all stored keys.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for alias, v := range m.keys {
		crypto.Wipe(v)
		delete(m.keys, alias)
	}
	return nil
}

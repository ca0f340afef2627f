package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
)

const (
	metadataBucket = "metadata"
	keysBucket     = "keys"
	devicesBucket  = "devices"

	versionKey    = "version"
	schemaVersion = 0
)

var errNotOpen = errors.New("storage: database is closed")

// Bolt stores keys and device entries in a bbolt database, one bucket each.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(keysBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(devicesBucket)); err != nil {
			return err
		}

		if v := meta.Get([]byte(versionKey)); v != nil {
			if len(v) != 1 || v[0] != schemaVersion {
				return fmt.Errorf("storage: incompatible version: %x", v)
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{schemaVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// GetKey implements keystore.KeyStorage.
func (b *Bolt) GetKey(alias string) ([]byte, error) {
	if b.db == nil {
		return nil, errNotOpen
	}
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(keysBucket)).Get([]byte(alias))
		if v == nil {
			return keystore.ErrKeyNotFound
		}
		// v is only valid inside the transaction.
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

// PutKey implements keystore.KeyStorage.
func (b *Bolt) PutKey(alias string, value []byte) error {
	if b.db == nil {
		return errNotOpen
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keysBucket)).Put([]byte(alias), bytes.Clone(value))
	})
}

// DeleteKey implements keystore.KeyStorage.
func (b *Bolt) DeleteKey(alias string) error {
	if b.db == nil {
		return errNotOpen
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(keysBucket))
		if bkt.Get([]byte(alias)) == nil {
			return keystore.ErrKeyNotFound
		}
		return bkt.Delete([]byte(alias))
	})
}

// LoadDevices implements identity.Backend.
func (b *Bolt) LoadDevices() ([]*identity.DeviceEntry, error) {
	if b.db == nil {
		return nil, errNotOpen
	}
	var out []*identity.DeviceEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(devicesBucket)).ForEach(func(k, v []byte) error {
			e, err := decodeDevice(v)
			if err != nil {
				return fmt.Errorf("%w (key %q)", err, k)
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// PutDevice implements identity.Backend.
func (b *Bolt) PutDevice(key string, entry *identity.DeviceEntry) error {
	if b.db == nil {
		return errNotOpen
	}
	raw, err := encodeDevice(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(devicesBucket)).Put([]byte(key), raw)
	})
}

// DeleteDevice implements identity.Backend.
func (b *Bolt) DeleteDevice(key string) error {
	if b.db == nil {
		return errNotOpen
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(devicesBucket))
		if bkt.Get([]byte(key)) == nil {
			return identity.ErrDeviceNotFound
		}
		return bkt.Delete([]byte(key))
	})
}

// Close syncs and closes the database.
func (b *Bolt) Close() error {
	if b.db == nil {
		return nil
	}
	if err := b.db.Sync(); err != nil {
		b.db.Close()
		b.db = nil
		return err
	}
	err := b.db.Close()
	b.db = nil
	return err
}

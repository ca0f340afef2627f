// Package storage provides persistence backends for the key store and the
// trust store. Memory is for tests and ephemeral devices; Bolt keeps both in a
// single bbolt file.
package storage

import (
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
)

// Storage is a backend serving both stores.
type Storage interface {
	keystore.KeyStorage
	identity.Backend
	Close() error
}

var (
	_ Storage = (*Memory)(nil)
	_ Storage = (*Bolt)(nil)
)

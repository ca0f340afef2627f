// Package keystore is the crypto adapter the protocols use for long-term keys.
//
// Private keys never leave the adapter: callers address them by a
// deterministic alias and ask the adapter to sign with them. Verification,
// session encryption and decryption are offered here as well so the protocol
// code depends on a single capability.
package keystore

import (
	"errors"
	"fmt"
)

// UserType is the role a device plays in a trust relationship.
type UserType int

const (
	UserTypeAccessory  UserType = 0
	UserTypeController UserType = 1
)

// String returns the user type name.
func (u UserType) String() string {
	switch u {
	case UserTypeAccessory:
		return "Accessory"
	case UserTypeController:
		return "Controller"
	default:
		return fmt.Sprintf("UserType(%d)", int(u))
	}
}

// Valid reports whether u is a known user type.
func (u UserType) Valid() bool {
	return u == UserTypeAccessory || u == UserTypeController
}

// Purpose identifies what a key is used for and is folded into its alias.
type Purpose int

const (
	PurposeAccessoryPK Purpose = iota
	PurposeControllerPK
	PurposeLTKeyPair
	PurposeKEK
	PurposeDEK
	PurposeTmp
)

var purposeTags = map[Purpose]string{
	PurposeAccessoryPK:  "hichain_accessory_pk",
	PurposeControllerPK: "hichain_controller_pk",
	PurposeLTKeyPair:    "hichain_lt_key_pair",
	PurposeKEK:          "hichain_kek",
	PurposeDEK:          "hichain_dek",
	PurposeTmp:          "hichain_tmp",
}

// Tag returns the alias tag of the purpose, or "" for unknown values.
func (p Purpose) Tag() string {
	return purposeTags[p]
}

var (
	// ErrKeyNotFound is returned when no key is stored under an alias.
	ErrKeyNotFound = errors.New("keystore: key not found")

	// ErrKeyExists is returned by GenerateKeyPair when the alias is taken.
	ErrKeyExists = errors.New("keystore: key already exists")
)

// Adapter is the signing and encryption capability keyed by alias.
type Adapter interface {
	// GenerateKeyPair creates a P-256 key pair under alias and returns its
	// public key.
	GenerateKeyPair(alias string) ([]byte, error)

	// ExportPublicKey returns the public key stored under alias.
	ExportPublicKey(alias string) ([]byte, error)

	// HasKey reports whether alias holds a key.
	HasKey(alias string) (bool, error)

	// DeleteKey removes the key under alias. Missing keys are not an error.
	DeleteKey(alias string) error

	// Sign signs data with the private key under alias.
	Sign(alias string, data []byte) ([]byte, error)

	// Verify checks a signature made by a peer of the given type.
	Verify(peerType UserType, data, publicKey, signature []byte) error

	// Encrypt seals data under sessionKey bound to the domain tag.
	Encrypt(sessionKey, data []byte, tag string) ([]byte, error)

	// Decrypt opens data sealed by Encrypt with the same key and tag.
	Decrypt(sessionKey, data []byte, tag string) ([]byte, error)
}

// KeyStorage persists raw key records by alias. Get returns ErrKeyNotFound,
// possibly wrapped, for missing aliases.
type KeyStorage interface {
	GetKey(alias string) ([]byte, error)
	PutKey(alias string, value []byte) error
	DeleteKey(alias string) error
}

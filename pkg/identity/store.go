package identity

import "errors"

var (
	// ErrDeviceNotFound is returned when no matching device entry exists.
	ErrDeviceNotFound = errors.New("identity: device not found")
)

// Store is the credential store the protocols resolve identities against.
// Implementations serialize their writes.
type Store interface {
	// ResolveSelfDeviceEntry returns the local device's entry in groupID.
	ResolveSelfDeviceEntry(account Account, groupID string) (*DeviceEntry, error)

	// ResolvePeerDeviceEntry returns the entry of the peer whose auth id is
	// peerIDHint.
	ResolvePeerDeviceEntry(account Account, groupID string, peerIDHint []byte) (*DeviceEntry, error)

	// ResolveIdentityInfo lists the credentials of the given kind in groupID.
	// The caller owns the list and must Destroy it.
	ResolveIdentityInfo(keyType KeyType, trustType TrustType, groupID string) (*IdentityInfoList, error)

	// SaveAuthInfo records a verified peer in one write.
	SaveAuthInfo(pairType PairType, groupID string, info *AuthInfoCache) error

	// SaveSelfDeviceEntry records the local device's entry.
	SaveSelfDeviceEntry(entry *DeviceEntry) error

	// DeleteDevice removes a peer entry.
	DeleteDevice(groupID string, authID []byte) error

	// ListDevices returns copies of the peer entries in groupID, or of every
	// group when groupID is empty.
	ListDevices(groupID string) ([]*DeviceEntry, error)

	// IsTrusted reports whether a peer entry exists.
	IsTrusted(groupID string, authID []byte) bool
}

// Backend persists device entries for a TrustStore.
type Backend interface {
	LoadDevices() ([]*DeviceEntry, error)
	PutDevice(key string, entry *DeviceEntry) error
	DeleteDevice(key string) error
}

// Package identity holds the device trust records produced by pairing and the
// lookups the protocols make against them.
package identity

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/keystore"
)

// Account selects the account context of a lookup.
type Account int

// AccountUnrelated is the only account context supported: device trust that
// does not depend on a user account.
const AccountUnrelated Account = 0

// PairType records how a device entry was established.
type PairType int

const (
	PairTypeBind PairType = iota
	PairTypeAuth
)

// KeyType is the kind of credential an identity carries.
type KeyType int

const (
	KeyTypeSymmetric KeyType = iota + 1
	KeyTypeAsymmetric
)

// TrustType is the basis on which an identity is trusted.
type TrustType int

const (
	// TrustTypePin is trust established from a shared PIN.
	TrustTypePin TrustType = iota + 1
	// TrustTypeDevice is trust in a device whose ltpk has been verified.
	TrustTypeDevice
)

// ProtocolType names a sub-protocol an identity can be used with.
type ProtocolType int

const (
	ProtocolPake ProtocolType = iota + 1
	ProtocolSTS
)

func (p ProtocolType) String() string {
	switch p {
	case ProtocolPake:
		return "PAKE"
	case ProtocolSTS:
		return "STS"
	default:
		return fmt.Sprintf("ProtocolType(%d)", int(p))
	}
}

// DeviceEntry is a trust record for one device in a group.
type DeviceEntry struct {
	GroupID  string
	AuthID   []byte
	UserType keystore.UserType
	LTPK     []byte
	PairType PairType
	Self     bool
}

// AuthIDHex returns the auth id hex encoded.
func (e *DeviceEntry) AuthIDHex() string {
	return hex.EncodeToString(e.AuthID)
}

// Clone returns a deep copy of the entry.
func (e *DeviceEntry) Clone() *DeviceEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.AuthID = bytes.Clone(e.AuthID)
	c.LTPK = bytes.Clone(e.LTPK)
	return &c
}

func (e *DeviceEntry) key() string {
	return entryKey(e.GroupID, e.AuthID, e.Self)
}

func entryKey(groupID string, authID []byte, self bool) string {
	role := "peer"
	if self {
		role = "self"
	}
	return role + "/" + groupID + "/" + hex.EncodeToString(authID)
}

// AuthInfoCache is the verified result of an identity exchange.
type AuthInfoCache struct {
	UserType keystore.UserType
	AuthID   []byte
	LTPK     []byte
}

// ProtocolEntity is a sub-protocol usable with an identity.
type ProtocolEntity struct {
	Protocol ProtocolType
}

// Destroy implements Destroyer.
func (p *ProtocolEntity) Destroy() {}

// IdentityInfo is a credential the protocols can authenticate with.
type IdentityInfo struct {
	KeyType   KeyType
	TrustType TrustType
	GroupID   string
	AuthID    []byte
	UserType  keystore.UserType

	// Proof is the credential material. It is wiped by Destroy.
	Proof []byte

	Protocols *List[*ProtocolEntity]
}

// Supports reports whether the identity lists protocol p.
func (i *IdentityInfo) Supports(p ProtocolType) bool {
	if i.Protocols == nil {
		return false
	}
	for _, e := range i.Protocols.Items() {
		if e.Protocol == p {
			return true
		}
	}
	return false
}

// Destroy wipes the proof and destroys the protocol list.
func (i *IdentityInfo) Destroy() {
	crypto.Wipe(i.Proof)
	i.Proof = nil
	if i.Protocols != nil {
		i.Protocols.Destroy()
		i.Protocols = nil
	}
}

// IdentityInfoList is an owned list of identities.
type IdentityInfoList = List[*IdentityInfo]

// ProtocolEntityList is an owned list of protocol entities.
type ProtocolEntityList = List[*ProtocolEntity]

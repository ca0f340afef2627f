package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("storage: cbor encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("storage: cbor decoder mode: %v", err))
	}
}

// deviceRecord is the on-disk form of a device entry.
type deviceRecord struct {
	GroupID  string `cbor:"1,keyasint"`
	AuthID   []byte `cbor:"2,keyasint"`
	UserType int    `cbor:"3,keyasint"`
	LTPK     []byte `cbor:"4,keyasint"`
	PairType int    `cbor:"5,keyasint"`
	Self     bool   `cbor:"6,keyasint,omitempty"`
}

func encodeDevice(e *identity.DeviceEntry) ([]byte, error) {
	return encMode.Marshal(deviceRecord{
		GroupID:  e.GroupID,
		AuthID:   e.AuthID,
		UserType: int(e.UserType),
		LTPK:     e.LTPK,
		PairType: int(e.PairType),
		Self:     e.Self,
	})
}

func decodeDevice(data []byte) (*identity.DeviceEntry, error) {
	var r deviceRecord
	if err := decMode.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("storage: decode device: %w", err)
	}
	return &identity.DeviceEntry{
		GroupID:  r.GroupID,
		AuthID:   r.AuthID,
		UserType: keystore.UserType(r.UserType),
		LTPK:     r.LTPK,
		PairType: identity.PairType(r.PairType),
		Self:     r.Self,
	}, nil
}

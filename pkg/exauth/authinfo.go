package exauth

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

// authInfo is serialized with authId first.
type authInfo struct {
	AuthID message.HexBytes `json:"authId"`
	AuthPK message.HexBytes `json:"authPk"`
}

func parseAuthInfo(data []byte) (*authInfo, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var info authInfo
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: auth info: %v", status.ErrMalformedPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after auth info", status.ErrMalformedPayload)
	}
	if len(info.AuthID) == 0 || len(info.AuthID) > message.MaxAuthIDSize {
		return nil, fmt.Errorf("%w: auth id is %d bytes", status.ErrMalformedPayload, len(info.AuthID))
	}
	if err := crypto.P256ValidatePublicKey(info.AuthPK); err != nil {
		return nil, fmt.Errorf("%w: auth pk: %v", status.ErrMalformedPayload, err)
	}
	return &info, nil
}

// Package exauth exchanges and verifies long-term public keys under a PAKE
// session key.
//
// Each side sends Enc(sessionKey, authInfo || Sign(lt, selfChallenge ||
// peerChallenge || authInfo)), where authInfo is {"authId","authPk"}. The
// centre sends the request, the accessory the response, and each direction
// uses its own AEAD domain tag.
package exauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/status"
)

// AEAD domain tags.
const (
	RequestTag  = "hichain_exchange_request"
	ResponseTag = "hichain_exchange_response"
)

var (
	// ErrWrongRole is returned when a side builds or receives the other
	// side's message.
	ErrWrongRole = errors.New("exauth: operation not valid for role")

	// ErrNoKeystore is returned when Config.Keystore is nil.
	ErrNoKeystore = errors.New("exauth: keystore is required")
)

// GetSelfKeyID returns the alias of the long-term key pair for (serviceID,
// authID), generating the pair the first time. Repeated calls return the same
// alias and never replace the key.
func GetSelfKeyID(ks keystore.Adapter, serviceID string, authID []byte) (string, error) {
	alias, err := keystore.KeyAlias(serviceID, keystore.PurposeLTKeyPair, authID)
	if err != nil {
		return "", err
	}
	ok, err := ks.HasKey(alias)
	if err != nil {
		return "", err
	}
	if ok {
		return alias, nil
	}
	if _, err := ks.GenerateKeyPair(alias); err != nil && !errors.Is(err, keystore.ErrKeyExists) {
		return "", err
	}
	return alias, nil
}

// Config configures an Exchanger.
type Config struct {
	Keystore   keystore.Adapter
	ServiceID  string
	SelfAuthID []byte

	// Centre is true on the side that opened the bind.
	Centre bool

	// PeerAuthID, when set, is the auth id the peer must present.
	PeerAuthID []byte
}

// Exchanger runs one side of the exchange for one session.
type Exchanger struct {
	ks        keystore.Adapter
	alias     string
	authInfo  []byte
	centre    bool
	expectPID []byte
}

// New resolves the self key and prepares the authInfo this side sends.
func New(cfg Config) (*Exchanger, error) {
	if cfg.Keystore == nil {
		return nil, ErrNoKeystore
	}
	if len(cfg.SelfAuthID) == 0 || len(cfg.SelfAuthID) > message.MaxAuthIDSize {
		return nil, fmt.Errorf("%w: self auth id is %d bytes", status.ErrMalformedPayload, len(cfg.SelfAuthID))
	}
	alias, err := GetSelfKeyID(cfg.Keystore, cfg.ServiceID, cfg.SelfAuthID)
	if err != nil {
		return nil, err
	}
	pk, err := cfg.Keystore.ExportPublicKey(alias)
	if err != nil {
		return nil, err
	}
	info, err := json.Marshal(authInfo{AuthID: cfg.SelfAuthID, AuthPK: pk})
	if err != nil {
		return nil, err
	}
	return &Exchanger{
		ks:        cfg.Keystore,
		alias:     alias,
		authInfo:  info,
		centre:    cfg.Centre,
		expectPID: bytes.Clone(cfg.PeerAuthID),
	}, nil
}

// PeerType is the user type the peer signs as.
func (e *Exchanger) PeerType() keystore.UserType {
	if e.centre {
		return keystore.UserTypeAccessory
	}
	return keystore.UserTypeController
}

// BuildExchangeRequest returns the centre's encrypted authInfo.
func (e *Exchanger) BuildExchangeRequest(sessionKey, selfChallenge, peerChallenge []byte) ([]byte, error) {
	if !e.centre {
		return nil, ErrWrongRole
	}
	return e.build(sessionKey, selfChallenge, peerChallenge, RequestTag)
}

// BuildExchangeResponse returns the accessory's encrypted authInfo.
func (e *Exchanger) BuildExchangeResponse(sessionKey, selfChallenge, peerChallenge []byte) ([]byte, error) {
	if e.centre {
		return nil, ErrWrongRole
	}
	return e.build(sessionKey, selfChallenge, peerChallenge, ResponseTag)
}

// ReceiveExchangeRequest verifies the centre's authInfo on the accessory.
func (e *Exchanger) ReceiveExchangeRequest(sessionKey, selfChallenge, peerChallenge, data []byte) (*identity.AuthInfoCache, error) {
	if e.centre {
		return nil, ErrWrongRole
	}
	return e.receive(sessionKey, selfChallenge, peerChallenge, data, RequestTag)
}

// ReceiveExchangeResponse verifies the accessory's authInfo on the centre.
func (e *Exchanger) ReceiveExchangeResponse(sessionKey, selfChallenge, peerChallenge, data []byte) (*identity.AuthInfoCache, error) {
	if !e.centre {
		return nil, ErrWrongRole
	}
	return e.receive(sessionKey, selfChallenge, peerChallenge, data, ResponseTag)
}

func (e *Exchanger) build(sessionKey, selfChallenge, peerChallenge []byte, tag string) ([]byte, error) {
	signed, err := signedBytes(selfChallenge, peerChallenge, e.authInfo)
	if err != nil {
		return nil, err
	}
	defer signed.Wipe()
	sig, err := e.ks.Sign(e.alias, signed.Bytes())
	if err != nil {
		return nil, err
	}

	pt := crypto.NewBuilder(len(e.authInfo) + len(sig))
	defer pt.Wipe()
	if err := pt.Append(e.authInfo, sig); err != nil {
		return nil, err
	}
	return e.ks.Encrypt(sessionKey, pt.Bytes(), tag)
}

func (e *Exchanger) receive(sessionKey, selfChallenge, peerChallenge, data []byte, tag string) (*identity.AuthInfoCache, error) {
	pt, err := e.ks.Decrypt(sessionKey, data, tag)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(pt)
	if len(pt) <= crypto.P256SignatureSize {
		return nil, fmt.Errorf("%w: %d byte plaintext", status.ErrPayloadTooShort, len(pt))
	}
	rawInfo := pt[:len(pt)-crypto.P256SignatureSize]
	sig := pt[len(pt)-crypto.P256SignatureSize:]

	info, err := parseAuthInfo(rawInfo)
	if err != nil {
		return nil, err
	}

	signed, err := signedBytes(peerChallenge, selfChallenge, rawInfo)
	if err != nil {
		return nil, err
	}
	defer signed.Wipe()
	peerType := e.PeerType()
	if err := e.ks.Verify(peerType, signed.Bytes(), info.AuthPK, sig); err != nil {
		return nil, err
	}

	if len(e.expectPID) > 0 && !bytes.Equal(e.expectPID, info.AuthID) {
		return nil, fmt.Errorf("%w: peer presented auth id %x", status.ErrPeerNotTrusted, []byte(info.AuthID))
	}
	return &identity.AuthInfoCache{
		UserType: peerType,
		AuthID:   bytes.Clone(info.AuthID),
		LTPK:     bytes.Clone(info.AuthPK),
	}, nil
}

func signedBytes(first, second, info []byte) (*crypto.Builder, error) {
	if len(first) != message.ChallengeSize || len(second) != message.ChallengeSize {
		return nil, fmt.Errorf("%w: challenges must be %d bytes", status.ErrMalformedPayload, message.ChallengeSize)
	}
	b := crypto.NewBuilder(2*message.ChallengeSize + len(info))
	if err := b.Append(first, second, info); err != nil {
		return nil, err
	}
	return b, nil
}

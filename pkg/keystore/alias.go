package keystore

import (
	"encoding/hex"
	"fmt"

	"github.com/backkem/hichain/pkg/crypto"
	"github.com/backkem/hichain/pkg/status"
)

// ServiceID returns HEX(SHA256(pkgName || serviceType)).
func ServiceID(pkgName, serviceType string) (string, error) {
	if pkgName == "" || serviceType == "" {
		return "", fmt.Errorf("%w: empty package name or service type", status.ErrKeyAliasGenerationFailed)
	}
	return hex.EncodeToString(crypto.SHA256Concat([]byte(pkgName), []byte(serviceType))), nil
}

// KeyAlias returns HEX(SHA256(serviceID || purposeTag || authID)). The result
// depends only on its inputs, so both restarts and repeated calls resolve the
// same stored key.
func KeyAlias(serviceID string, purpose Purpose, authID []byte) (string, error) {
	tag := purpose.Tag()
	switch {
	case serviceID == "":
		return "", fmt.Errorf("%w: empty service id", status.ErrKeyAliasGenerationFailed)
	case tag == "":
		return "", fmt.Errorf("%w: unknown purpose %d", status.ErrKeyAliasGenerationFailed, int(purpose))
	case len(authID) == 0:
		return "", fmt.Errorf("%w: empty auth id", status.ErrKeyAliasGenerationFailed)
	}
	return hex.EncodeToString(crypto.SHA256Concat([]byte(serviceID), []byte(tag), authID)), nil
}

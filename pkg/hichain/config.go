package hichain

import (
	"io"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/backkem/hichain/pkg/identity"
	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/session"
)

// DefaultMaxSessions is the default limit of concurrent sessions.
const DefaultMaxSessions = 16

// Config configures an Instance.
type Config struct {
	// Keystore holds the long-term keys. Required.
	Keystore keystore.Adapter

	// Store holds the trust records. Required.
	Store identity.Store

	// Callbacks connects the instance to its host. Required.
	Callbacks Callbacks

	// Capabilities selects the enabled operations. Nil enables all.
	Capabilities *session.Capabilities

	// Versions is the supported protocol version range.
	// Default: message.DefaultVersionRange()
	Versions message.VersionRange

	// KeyLength is the session key length. Default: 32
	KeyLength int

	// MaxSessions limits concurrent sessions. Default: DefaultMaxSessions
	MaxSessions int

	// Registerer receives the instance metrics. If nil, metrics are kept
	// but not registered.
	Registerer prometheus.Registerer

	// Rand is the randomness source. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory for logging. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Keystore == nil {
		return ErrKeystoreRequired
	}
	if c.Store == nil {
		return ErrStoreRequired
	}
	if c.Callbacks == nil {
		return ErrCallbacksRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Capabilities == nil {
		caps := session.AllCapabilities()
		c.Capabilities = &caps
	}
	if c.Versions == (message.VersionRange{}) {
		c.Versions = message.DefaultVersionRange()
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
}

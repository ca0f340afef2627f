// Package config loads the YAML description of a device: who it is, where it
// keeps its keys and trust records, and which protocol options it offers.
//
// Example:
//
//	device:
//	  auth_id: lamp-01
//	  user_type: accessory
//	  package_name: com.example.home
//	  service_type: light
//	storage:
//	  path: /var/lib/hichain/lamp.db
//	protocol:
//	  min_version: 1.0.0
//	  current_version: 1.0.0
//	  key_length: 32
//	capabilities: [bind, auth]
//	log_level: info
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"

	"github.com/backkem/hichain/pkg/keystore"
	"github.com/backkem/hichain/pkg/message"
	"github.com/backkem/hichain/pkg/session"
)

// Errors returned by Validate.
var (
	ErrMissingAuthID     = errors.New("config: device.auth_id is required")
	ErrMissingService    = errors.New("config: device.package_name and device.service_type are required")
	ErrInvalidUserType   = errors.New("config: invalid device.user_type")
	ErrInvalidVersion    = errors.New("config: invalid protocol version")
	ErrInvalidCapability = errors.New("config: invalid capability")
	ErrInvalidLogLevel   = errors.New("config: invalid log_level")
	ErrInvalidKeyLen     = errors.New("config: protocol.key_length must be between 32 and 64")
)

// Config is the parsed configuration file.
type Config struct {
	Device       Device   `yaml:"device"`
	Storage      Storage  `yaml:"storage"`
	Protocol     Protocol `yaml:"protocol"`
	Capabilities []string `yaml:"capabilities"`
	MaxSessions  int      `yaml:"max_sessions"`
	LogLevel     string   `yaml:"log_level"`
}

// Device names the local device and the service it binds for.
type Device struct {
	AuthID      string `yaml:"auth_id"`
	UserType    string `yaml:"user_type"`
	PackageName string `yaml:"package_name"`
	ServiceType string `yaml:"service_type"`
}

// Storage selects the backend for keys and trust records. An empty path
// keeps everything in memory.
type Storage struct {
	Path string `yaml:"path"`
}

// Protocol holds the negotiable protocol options.
type Protocol struct {
	MinVersion     string `yaml:"min_version"`
	CurrentVersion string `yaml:"current_version"`
	KeyLength      int    `yaml:"key_length"`
}

// Parse decodes and validates a configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Device.UserType == "" {
		c.Device.UserType = "accessory"
	}
	def := message.DefaultVersion.String()
	if c.Protocol.CurrentVersion == "" {
		c.Protocol.CurrentVersion = def
	}
	if c.Protocol.MinVersion == "" {
		c.Protocol.MinVersion = c.Protocol.CurrentVersion
	}
	if c.Protocol.KeyLength == 0 {
		c.Protocol.KeyLength = 32
	}
	if c.Capabilities == nil {
		c.Capabilities = []string{"bind", "auth"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Device.AuthID == "" {
		return ErrMissingAuthID
	}
	if len(c.Device.AuthID) > message.MaxAuthIDSize {
		return fmt.Errorf("config: device.auth_id longer than %d bytes", message.MaxAuthIDSize)
	}
	if c.Device.PackageName == "" || c.Device.ServiceType == "" {
		return ErrMissingService
	}
	if _, err := c.UserType(); err != nil {
		return err
	}
	if _, err := c.Versions(); err != nil {
		return err
	}
	if c.Protocol.KeyLength < 32 || c.Protocol.KeyLength > 64 {
		return ErrInvalidKeyLen
	}
	if _, err := c.CapabilitySet(); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// UserType returns the device's user type.
func (c *Config) UserType() (keystore.UserType, error) {
	switch strings.ToLower(c.Device.UserType) {
	case "accessory":
		return keystore.UserTypeAccessory, nil
	case "controller":
		return keystore.UserTypeController, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUserType, c.Device.UserType)
	}
}

// Versions returns the supported version range.
func (c *Config) Versions() (message.VersionRange, error) {
	cur, err := message.ParseVersion(c.Protocol.CurrentVersion)
	if err != nil {
		return message.VersionRange{}, fmt.Errorf("%w: current_version %q", ErrInvalidVersion, c.Protocol.CurrentVersion)
	}
	lo, err := message.ParseVersion(c.Protocol.MinVersion)
	if err != nil {
		return message.VersionRange{}, fmt.Errorf("%w: min_version %q", ErrInvalidVersion, c.Protocol.MinVersion)
	}
	if lo.Compare(cur) > 0 {
		return message.VersionRange{}, fmt.Errorf("%w: min_version %s above current_version %s", ErrInvalidVersion, lo, cur)
	}
	return message.VersionRange{Current: cur, Min: lo}, nil
}

// CapabilitySet returns the enabled operations.
func (c *Config) CapabilitySet() (session.Capabilities, error) {
	var caps session.Capabilities
	for _, name := range c.Capabilities {
		switch strings.ToLower(name) {
		case "bind":
			caps.Bind = true
		case "auth":
			caps.Auth = true
		default:
			return session.Capabilities{}, fmt.Errorf("%w: %q", ErrInvalidCapability, name)
		}
	}
	return caps, nil
}

// LoggerFactory returns a pion logger factory writing to w at the configured
// level.
func (c *Config) LoggerFactory(w io.Writer) logging.LoggerFactory {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = logging.LogLevelWarn
	}
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w
	f.DefaultLogLevel = level
	return f
}

func parseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

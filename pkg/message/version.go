package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/hichain/pkg/status"
)

// Version is a protocol version "major.minor.patch".
type Version struct {
	Major, Minor, Patch int
}

// DefaultVersion is the protocol version this implementation speaks.
var DefaultVersion = Version{1, 0, 0}

// ParseVersion parses "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: version %q", status.ErrMalformedPayload, s)
	}
	var n [3]int
	for i, p := range parts {
		if p == "" || p[0] < '0' || p[0] > '9' || (len(p) > 1 && p[0] == '0') {
			return Version{}, fmt.Errorf("%w: version %q", status.ErrMalformedPayload, s)
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: version %q", status.ErrMalformedPayload, s)
		}
		n[i] = v
	}
	return Version{n[0], n[1], n[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

func sign(d int) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	}
	return 0
}

// VersionRange is the {currentVersion, minVersion} object of the protocol
// messages. A responder sets Current to the negotiated version.
type VersionRange struct {
	Current Version
	Min     Version
}

// DefaultVersionRange is [DefaultVersion, DefaultVersion].
func DefaultVersionRange() VersionRange {
	return VersionRange{Current: DefaultVersion, Min: DefaultVersion}
}

// Contains reports whether v lies in [Min, Current].
func (r VersionRange) Contains(v Version) bool {
	return r.Min.Compare(v) <= 0 && v.Compare(r.Current) <= 0
}

// Negotiate returns the highest version both ranges contain, or
// status.ErrVersionMismatch when they do not overlap.
func (r VersionRange) Negotiate(peer VersionRange) (Version, error) {
	v := r.Current
	if peer.Current.Compare(v) < 0 {
		v = peer.Current
	}
	if !r.Contains(v) || !peer.Contains(v) {
		return Version{}, fmt.Errorf("%w: [%s, %s] and [%s, %s] do not overlap",
			status.ErrVersionMismatch, r.Min, r.Current, peer.Min, peer.Current)
	}
	return v, nil
}

func (r VersionRange) validate() error {
	if r.Min.Compare(r.Current) > 0 {
		return fmt.Errorf("%w: minVersion %s above currentVersion %s", status.ErrMalformedPayload, r.Min, r.Current)
	}
	return nil
}

type versionRangeJSON struct {
	Current string `json:"currentVersion"`
	Min     string `json:"minVersion"`
}

// MarshalJSON implements json.Marshaler.
func (r VersionRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(versionRangeJSON{Current: r.Current.String(), Min: r.Min.String()})
}

// UnmarshalJSON implements json.Unmarshaler. Both keys are required and no
// others are allowed.
func (r *VersionRange) UnmarshalJSON(data []byte) error {
	fields, err := strictObject(data, "currentVersion", "minVersion")
	if err != nil {
		return err
	}
	var cur, lo string
	if err := json.Unmarshal(fields["currentVersion"], &cur); err != nil {
		return fmt.Errorf("%w: currentVersion: %v", status.ErrMalformedPayload, err)
	}
	if err := json.Unmarshal(fields["minVersion"], &lo); err != nil {
		return fmt.Errorf("%w: minVersion: %v", status.ErrMalformedPayload, err)
	}
	if r.Current, err = ParseVersion(cur); err != nil {
		return err
	}
	r.Min, err = ParseVersion(lo)
	return err
}

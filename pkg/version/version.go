// Package version identifies this client to the service.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the client release.
const Version = "1.0.0"

// ClientName is the product token sent on link attach.
const ClientName = "amqp-device-go"

// Release is a parsed "major.minor.patch" version.
type Release struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse parses a "major.minor.patch" version string.
func Parse(s string) (Release, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Release{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	var nums [3]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || p == "" {
			return Release{}, fmt.Errorf("invalid version %q: bad component %q", s, p)
		}
		nums[i] = uint16(n)
	}
	return Release{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns the version as "major.minor.patch".
func (r Release) String() string {
	return fmt.Sprintf("%d.%d.%d", r.Major, r.Minor, r.Patch)
}

// UserAgent returns the client identification string, e.g.
// "amqp-device-go/1.0.0".
func UserAgent() string {
	return ClientName + "/" + Version
}

// ParseUserAgent splits a client identification string into product and
// release.
func ParseUserAgent(ua string) (string, Release, error) {
	product, ver, ok := strings.Cut(ua, "/")
	if !ok || product == "" {
		return "", Release{}, fmt.Errorf("invalid client identification %q", ua)
	}
	r, err := Parse(ver)
	if err != nil {
		return "", Release{}, err
	}
	return product, r, nil
}

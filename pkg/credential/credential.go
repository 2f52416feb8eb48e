package credential

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
)

// Protocol-imposed bounds on identity strings.
const (
	// MaxDeviceIDLength is the longest device id the service accepts.
	MaxDeviceIDLength = 128

	// MaxHostNameLength is the longest fully qualified host name (RFC 1035).
	MaxHostNameLength = 254

	// MaxHostLabelLength is the longest label of a host name.
	MaxHostLabelLength = 63
)

// Credential errors.
var (
	ErrDeviceIDRequired       = errors.New("device id is required")
	ErrDeviceIDTooLong        = errors.New("device id exceeds 128 characters")
	ErrHostNameRequired       = errors.New("host name is required")
	ErrHostNameTooLong        = errors.New("host name exceeds 254 characters")
	ErrHostNameLabel          = errors.New("invalid host name label")
	ErrConflictingCredentials = errors.New("more than one authentication mechanism supplied")
	ErrNotX509                = errors.New("credential is not X.509 based")
	ErrMissingX509Material    = errors.New("X.509 certificate and private key are both required")
)

// Kind identifies the authentication mechanism carried by a Credential.
type Kind uint8

const (
	// KindUnbuilt is the zero value; no mechanism has been selected.
	KindUnbuilt Kind = iota

	// KindX509 authenticates with a client certificate during the TLS handshake.
	KindX509

	// KindDeviceKey mints SAS tokens in-process from a pre-shared key.
	KindDeviceKey

	// KindDeviceSasToken uses a caller-supplied SAS token as is.
	KindDeviceSasToken
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindUnbuilt:
		return "UNBUILT"
	case KindX509:
		return "X509"
	case KindDeviceKey:
		return "DEVICE_KEY"
	case KindDeviceSasToken:
		return "DEVICE_SAS_TOKEN"
	default:
		return "UNKNOWN"
	}
}

// Params carries the raw credential fields supplied by the host application.
// At most one of DeviceKey, DeviceSasToken or the X.509 pair may be set.
type Params struct {
	DeviceID        string
	DeviceKey       string
	DeviceSasToken  string
	X509Certificate string
	X509PrivateKey  string
}

// Credential holds exactly one authentication mechanism for one device.
// A Credential is a value; the With* methods return modified copies.
type Credential struct {
	kind     Kind
	deviceID string

	deviceKey string
	sasToken  string

	certificate string
	privateKey  string
}

// New builds a Credential from params.
//
// With neither a key nor a token set, the credential falls back to X.509;
// the certificate material may be supplied later through WithCertificate and WithPrivateKey.
func New(p Params) (Credential, error) {
	if err := ValidateDeviceID(p.DeviceID); err != nil {
		return Credential{}, err
	}

	hasKey := p.DeviceKey != ""
	hasToken := p.DeviceSasToken != ""
	hasX509 := p.X509Certificate != "" || p.X509PrivateKey != ""

	mechanisms := 0
	for _, set := range []bool{hasKey, hasToken, hasX509} {
		if set {
			mechanisms++
		}
	}
	if mechanisms > 1 {
		return Credential{}, ErrConflictingCredentials
	}

	c := Credential{deviceID: p.DeviceID}
	switch {
	case hasKey:
		c.kind = KindDeviceKey
		c.deviceKey = p.DeviceKey
	case hasToken:
		c.kind = KindDeviceSasToken
		c.sasToken = p.DeviceSasToken
	default:
		c.kind = KindX509
		c.certificate = p.X509Certificate
		c.privateKey = p.X509PrivateKey
	}
	return c, nil
}

// ValidateDeviceID checks the device id bounds.
func ValidateDeviceID(id string) error {
	if id == "" {
		return ErrDeviceIDRequired
	}
	if len(id) > MaxDeviceIDLength {
		return ErrDeviceIDTooLong
	}
	return nil
}

// ValidateHostName checks a fully qualified host name against RFC 1035:
// at most 254 characters, dot separated labels of 1 to 63 letters, digits
// and hyphens that neither start nor end with a hyphen. One trailing dot is
// allowed.
func ValidateHostName(fqdn string) error {
	if fqdn == "" {
		return ErrHostNameRequired
	}
	if len(fqdn) > MaxHostNameLength {
		return ErrHostNameTooLong
	}
	for i, label := range strings.Split(strings.TrimSuffix(fqdn, "."), ".") {
		if err := validateLabel(label); err != nil {
			return fmt.Errorf("%w: label %d %q: %v", ErrHostNameLabel, i, label, err)
		}
	}
	return nil
}

func validateLabel(label string) error {
	switch {
	case label == "":
		return errors.New("empty")
	case len(label) > MaxHostLabelLength:
		return fmt.Errorf("longer than %d characters", MaxHostLabelLength)
	case label[0] == '-' || label[len(label)-1] == '-':
		return errors.New("starts or ends with a hyphen")
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' || c == '-') {
			return fmt.Errorf("character %q not allowed", c)
		}
	}
	return nil
}

// Kind returns the authentication mechanism.
func (c Credential) Kind() Kind { return c.kind }

// DeviceID returns the device identity the credential belongs to.
func (c Credential) DeviceID() string { return c.deviceID }

// DeviceKey returns the pre-shared key for KindDeviceKey credentials.
func (c Credential) DeviceKey() string { return c.deviceKey }

// SasToken returns the caller-supplied token for KindDeviceSasToken credentials.
func (c Credential) SasToken() string { return c.sasToken }

// Certificate returns the PEM encoded client certificate.
func (c Credential) Certificate() string { return c.certificate }

// PrivateKey returns the PEM encoded client private key.
func (c Credential) PrivateKey() string { return c.privateKey }

// UsesCBS reports whether the credential authenticates through claims-based security.
func (c Credential) UsesCBS() bool {
	return c.kind == KindDeviceKey || c.kind == KindDeviceSasToken
}

// WithCertificate returns a copy with the client certificate replaced.
func (c Credential) WithCertificate(certPEM string) (Credential, error) {
	if c.kind != KindX509 {
		return c, ErrNotX509
	}
	c.certificate = certPEM
	return c, nil
}

// WithPrivateKey returns a copy with the client private key replaced.
func (c Credential) WithPrivateKey(keyPEM string) (Credential, error) {
	if c.kind != KindX509 {
		return c, ErrNotX509
	}
	c.privateKey = keyPEM
	return c, nil
}

// TLSCertificate parses the X.509 pair for use in a TLS handshake.
func (c Credential) TLSCertificate() (tls.Certificate, error) {
	if c.kind != KindX509 {
		return tls.Certificate{}, ErrNotX509
	}
	if c.certificate == "" || c.privateKey == "" {
		return tls.Certificate{}, ErrMissingX509Material
	}
	pair, err := tls.X509KeyPair([]byte(c.certificate), []byte(c.privateKey))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse X.509 key pair: %w", err)
	}
	return pair, nil
}

// Matches reports whether p describes this credential: same device id and
// the same mechanism. Device keys must be equal; tokens are only required to
// be present since the caller refreshes them independently.
func (c Credential) Matches(p Params) bool {
	if p.DeviceID != c.deviceID {
		return false
	}
	switch {
	case p.DeviceKey != "":
		return c.kind == KindDeviceKey && p.DeviceKey == c.deviceKey
	case p.DeviceSasToken != "":
		return c.kind == KindDeviceSasToken
	default:
		return c.kind == KindX509
	}
}

// String returns a description with secrets redacted.
func (c Credential) String() string {
	return fmt.Sprintf("credential{device=%s kind=%s}", c.deviceID, c.kind)
}

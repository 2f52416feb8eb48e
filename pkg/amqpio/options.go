package amqpio

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Option names understood by the TLS IO.
const (
	// OptionTrustedCerts is a PEM bundle of CA certificates replacing the
	// system roots.
	OptionTrustedCerts = "TrustedCerts"

	// OptionX509Certificate is the PEM client certificate.
	OptionX509Certificate = "x509certificate"

	// OptionX509PrivateKey is the PEM client private key.
	OptionX509PrivateKey = "x509privatekey"

	// OptionTLSVersion is the minimum TLS version: 12 or 13.
	OptionTLSVersion = "tls_version"

	// OptionConnectTimeout bounds dialing and the AMQP open handshake (ms).
	OptionConnectTimeout = "connect_timeout"

	// OptionProxyData routes WebSocket connections through an HTTP proxy.
	// The value is a ProxyData or a map with the keys host_address, port,
	// username and password.
	OptionProxyData = "proxy_data"

	// OptionInsecureSkipVerify disables server certificate verification.
	// Only for testing.
	OptionInsecureSkipVerify = "insecure_skip_verify"
)

// Option errors.
var (
	ErrUnknownOption  = errors.New("unknown option")
	ErrOptionType     = errors.New("option value has the wrong type")
	ErrNoTrustedCerts = errors.New("no certificates found in trusted bundle")
	ErrTLSVersion     = errors.New("unsupported TLS version")
	ErrProxyData      = errors.New("invalid proxy data")

	// ErrProxyRequiresWebSockets is returned when a proxy is set on a raw
	// TLS connection.
	ErrProxyRequiresWebSockets = errors.New("proxy requires websockets")
)

// DefaultConnectTimeout bounds connection establishment when no
// connect_timeout option is set.
const DefaultConnectTimeout = 30 * time.Second

// Options is the option set of a TLS IO.
type Options map[string]any

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	return maps.Clone(o)
}

// Set validates value for name and stores it.
func (o Options) Set(name string, value any) error {
	switch name {
	case OptionTrustedCerts, OptionX509Certificate, OptionX509PrivateKey:
		s, err := StringValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		o[name] = s
	case OptionTLSVersion:
		v, err := IntValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, err := tlsVersion(v); err != nil {
			return err
		}
		o[name] = v
	case OptionConnectTimeout:
		v, err := IntValue(value)
		if err != nil || v < 0 {
			return fmt.Errorf("%s: %w", name, ErrOptionType)
		}
		o[name] = v
	case OptionProxyData:
		v, err := ProxyDataValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		o[name] = v
	case OptionInsecureSkipVerify:
		v, err := BoolValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		o[name] = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	return nil
}

// ConnectTimeout returns the configured connect timeout.
func (o Options) ConnectTimeout() time.Duration {
	if v, ok := o[OptionConnectTimeout].(int64); ok && v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	return DefaultConnectTimeout
}

// Proxy returns the proxy URL, or nil when no proxy is set.
func (o Options) Proxy() *url.URL {
	if p, ok := o[OptionProxyData].(ProxyData); ok {
		return p.URL()
	}
	return nil
}

// TLSConfig builds the client TLS configuration for serverName.
func (o Options) TLSConfig(serverName string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		// The service requires TLS 1.2 or later.
		MinVersion: tls.VersionTLS12,

		ServerName: serverName,

		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}

	if v, ok := o[OptionTLSVersion].(int64); ok {
		version, err := tlsVersion(v)
		if err != nil {
			return nil, err
		}
		tlsConfig.MinVersion = version
	}

	if bundle, ok := o[OptionTrustedCerts].(string); ok && bundle != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(bundle)) {
			return nil, ErrNoTrustedCerts
		}
		tlsConfig.RootCAs = pool
	}

	certPEM, _ := o[OptionX509Certificate].(string)
	keyPEM, _ := o[OptionX509PrivateKey].(string)
	if certPEM != "" && keyPEM != "" {
		pair, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
		if err != nil {
			return nil, fmt.Errorf("client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{pair}
	}

	// For testing only
	if skip, ok := o[OptionInsecureSkipVerify].(bool); ok {
		tlsConfig.InsecureSkipVerify = skip
	}

	return tlsConfig, nil
}

func tlsVersion(v int64) (uint16, error) {
	switch v {
	case 12:
		return tls.VersionTLS12, nil
	case 13:
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrTLSVersion, v)
	}
}

// IntValue coerces an option value to an integer. Strings are parsed as
// base 10 so values read from configuration files work unchanged.
func IntValue(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case *int:
		if v != nil {
			return int64(*v), nil
		}
	case *uint64:
		if v != nil {
			return int64(*v), nil
		}
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return 0, ErrOptionType
}

// BoolValue coerces an option value to a bool.
func BoolValue(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case *bool:
		if v != nil {
			return *v, nil
		}
	case string:
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b, nil
		}
	}
	return false, ErrOptionType
}

// StringValue coerces an option value to a string.
func StringValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case *string:
		if v != nil {
			return *v, nil
		}
	}
	return "", ErrOptionType
}

// ProxyData is an HTTP proxy reached with CONNECT.
type ProxyData struct {
	Host     string
	Port     int
	Username string
	Password string
}

// URL returns the proxy address with its credentials.
func (p ProxyData) URL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

func (p ProxyData) validate() error {
	switch {
	case p.Host == "":
		return fmt.Errorf("%w: host_address is required", ErrProxyData)
	case p.Port <= 0 || p.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrProxyData, p.Port)
	case p.Username == "" && p.Password != "":
		return fmt.Errorf("%w: password without username", ErrProxyData)
	}
	return nil
}

// ProxyDataValue coerces an option value to validated ProxyData.
func ProxyDataValue(value any) (ProxyData, error) {
	var p ProxyData
	switch v := value.(type) {
	case ProxyData:
		p = v
	case *ProxyData:
		if v == nil {
			return ProxyData{}, ErrOptionType
		}
		p = *v
	case map[string]any:
		for key, field := range v {
			var err error
			switch key {
			case "host_address":
				p.Host, err = StringValue(field)
			case "port":
				var n int64
				n, err = IntValue(field)
				p.Port = int(n)
			case "username":
				p.Username, err = StringValue(field)
			case "password":
				p.Password, err = StringValue(field)
			default:
				err = fmt.Errorf("%w: unknown key %q", ErrProxyData, key)
			}
			if err != nil {
				return ProxyData{}, fmt.Errorf("%s: %w", key, err)
			}
		}
	default:
		return ProxyData{}, ErrOptionType
	}
	if err := p.validate(); err != nil {
		return ProxyData{}, err
	}
	return p, nil
}

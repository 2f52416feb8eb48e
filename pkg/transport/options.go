package transport

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/credential"
)

// Option names handled by the transport itself. Any other name is passed to
// the TLS IO.
const (
	// OptionSASTokenLifetime is the lifetime of minted SAS tokens (ms).
	OptionSASTokenLifetime = "sas_token_lifetime"

	// OptionSASTokenRefreshTime is the age at which a token is replaced (ms).
	OptionSASTokenRefreshTime = "sas_token_refresh_time"

	// OptionCBSRequestTimeout bounds a put-token exchange (ms).
	OptionCBSRequestTimeout = "cbs_request_timeout"

	// OptionLogTrace turns protocol message tracing on or off.
	OptionLogTrace = "logtrace"

	// OptionX509Certificate replaces the client certificate (PEM).
	OptionX509Certificate = amqpio.OptionX509Certificate

	// OptionX509PrivateKey replaces the client private key (PEM).
	OptionX509PrivateKey = amqpio.OptionX509PrivateKey

	// OptionRetryBackoff paces failed connect attempts with exponential
	// backoff instead of retrying on every tick.
	OptionRetryBackoff = "retry_backoff"
)

// Timing defaults.
const (
	DefaultSASTokenLifetime    = time.Hour
	DefaultSASTokenRefreshTime = DefaultSASTokenLifetime / 2
	DefaultCBSRequestTimeout   = 30 * time.Second
)

// SetOption sets a named option. Values may be given as Go values or as
// strings. Unknown names are forwarded to the TLS IO; while disconnected they
// are validated and kept until the next connect.
func (t *Transport) SetOption(name string, value any) error {
	if t.destroyed {
		return ErrDestroyed
	}

	switch name {
	case OptionSASTokenLifetime, OptionSASTokenRefreshTime, OptionCBSRequestTimeout:
		d, err := millis(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		switch name {
		case OptionSASTokenLifetime:
			t.auth.lifetime = d
		case OptionSASTokenRefreshTime:
			t.auth.refresh = d
		default:
			t.auth.timeout = d
		}
		t.auth.checkTiming(t.logger)
		return nil

	case OptionLogTrace:
		on, err := amqpio.BoolValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, ErrInvalidOption)
		}
		t.logTrace = on
		if t.conn != nil {
			t.conn.SetTrace(on)
		}
		return nil

	case OptionX509Certificate, OptionX509PrivateKey:
		return t.setX509(name, value)

	case OptionRetryBackoff:
		on, err := amqpio.BoolValue(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, ErrInvalidOption)
		}
		t.retry.SetEnabled(on)
		return nil
	}

	if name == amqpio.OptionProxyData && !t.webSockets {
		return fmt.Errorf("tls io option %s: %w", name, amqpio.ErrProxyRequiresWebSockets)
	}
	if t.tlsIO != nil {
		if err := t.tlsIO.SetOption(name, value); err != nil {
			return fmt.Errorf("tls io option %s: %w", name, err)
		}
		return nil
	}
	if err := t.savedOptions.Set(name, value); err != nil {
		return fmt.Errorf("tls io option %s: %w", name, err)
	}
	return nil
}

// SetOptions applies opts in name order and returns every failure joined.
func (t *Transport) SetOptions(opts map[string]any) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(opts)) {
		if err := t.SetOption(name, opts[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) setX509(name string, value any) error {
	pem, err := amqpio.StringValue(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, ErrInvalidOption)
	}
	if t.cred.Kind() != credential.KindX509 {
		return fmt.Errorf("%s: %w", name, ErrX509Only)
	}
	if name == OptionX509Certificate {
		t.cred, err = t.cred.WithCertificate(pem)
	} else {
		t.cred, err = t.cred.WithPrivateKey(pem)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	// Takes effect on the next connection.
	if t.tlsIO != nil {
		if err := t.tlsIO.SetOption(name, pem); err != nil {
			return fmt.Errorf("tls io option %s: %w", name, err)
		}
	}
	return nil
}

// millis converts a millisecond option value to a positive duration.
func millis(value any) (time.Duration, error) {
	ms, err := amqpio.IntValue(value)
	if err != nil || ms <= 0 {
		return 0, ErrInvalidOption
	}
	return time.Duration(ms) * time.Millisecond, nil
}

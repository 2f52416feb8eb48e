package transport

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/credential"
)

// Session flow control.
const (
	sessionIncomingWindow = math.MaxUint32
	sessionOutgoingWindow = 100
)

// connect builds TLS, SASL (CBS credentials only), the connection and its
// session. On failure everything created here is destroyed again.
func (t *Transport) connect(now time.Time) (err error) {
	defer func() {
		if err != nil {
			t.closeCBS()
			t.disconnect()
		}
	}()

	t.tlsIO, err = t.provider.NewTLSIO(t.addr.host, t.port)
	if err != nil {
		return fmt.Errorf("create tls io: %w", err)
	}
	if err = t.tlsIO.ApplyOptions(t.savedOptions); err != nil {
		return fmt.Errorf("apply tls io options: %w", err)
	}

	var io amqpio.IO = t.tlsIO
	switch t.cred.Kind() {
	case credential.KindX509:
		if err = t.applyX509(); err != nil {
			return err
		}
	case credential.KindDeviceKey, credential.KindDeviceSasToken:
		if t.saslMechanism, err = t.provider.NewSASLMechanism(); err != nil {
			return fmt.Errorf("create sasl mechanism: %w", err)
		}
		if t.saslIO, err = t.provider.NewSASLIO(t.tlsIO, t.saslMechanism); err != nil {
			return fmt.Errorf("create sasl io: %w", err)
		}
		io = t.saslIO
	default:
		return fmt.Errorf("unsupported credential %s", t.cred.Kind())
	}

	t.containerID = uuid.NewString()
	if t.conn, err = t.provider.NewConnection(io, t.addr.host, t.containerID, t.onConnectionState); err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	t.conn.SetTrace(t.logTrace)

	if t.session, err = t.conn.NewSession(); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err = t.session.SetIncomingWindow(sessionIncomingWindow); err != nil {
		return fmt.Errorf("set incoming window: %w", err)
	}
	if err = t.session.SetOutgoingWindow(sessionOutgoingWindow); err != nil {
		return fmt.Errorf("set outgoing window: %w", err)
	}

	if t.cred.UsesCBS() {
		if err = t.openCBS(); err != nil {
			return err
		}
	}

	t.connectedAt = now
	t.logger.Info("connection created", "host", t.addr.host, "port", t.port, "container", t.containerID, "credential", t.cred.Kind().String())
	return nil
}

func (t *Transport) applyX509() error {
	cert, key := t.cred.Certificate(), t.cred.PrivateKey()
	if cert == "" || key == "" {
		return credential.ErrMissingX509Material
	}
	if err := t.tlsIO.SetOption(amqpio.OptionX509Certificate, cert); err != nil {
		return fmt.Errorf("set client certificate: %w", err)
	}
	if err := t.tlsIO.SetOption(amqpio.OptionX509PrivateKey, key); err != nil {
		return fmt.Errorf("set client private key: %w", err)
	}
	return nil
}

// disconnect destroys the session, connection and IO stack. The TLS IO
// options are kept for the next connect.
func (t *Transport) disconnect() {
	if t.session != nil {
		t.session.Destroy()
		t.session = nil
	}
	if t.conn != nil {
		t.conn.Destroy()
		t.conn = nil
	}
	if t.saslIO != nil {
		t.saslIO.Destroy()
		t.saslIO = nil
	}
	if t.saslMechanism != nil {
		t.saslMechanism.Destroy()
		t.saslMechanism = nil
	}
	if t.tlsIO != nil {
		t.savedOptions = t.tlsIO.RetrieveOptions()
		t.tlsIO.Destroy()
		t.tlsIO = nil
	}
	t.connectedAt = time.Time{}
}

func (t *Transport) onConnectionState(state, previous amqpio.ConnectionState) {
	t.logger.Debug("connection state", "state", state.String(), "previous", previous.String())
	switch state {
	case amqpio.ConnectionError:
		t.markError("connection", fmt.Errorf("connection entered %s", state))
	case amqpio.ConnectionEnd:
		if previous != amqpio.ConnectionClosing {
			t.markError("connection", fmt.Errorf("connection ended from %s", previous))
		}
	}
}

package transport

import (
	"log/slog"
	"time"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/connection"
	"github.com/cloudmsg/amqp-device-go/pkg/credential"
	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

// Transport is the per-device AMQP transport. It is not safe for concurrent
// use: every method must be called from the goroutine that calls DoWork.
type Transport struct {
	cred       credential.Credential
	addr       addresses
	port       int
	webSockets bool
	provider   amqpio.Provider

	logger         *slog.Logger
	protocolLogger log.Logger
	ownsCapture    bool
	metrics        *metrics
	clock          Clock
	retry          *connection.RetryGate

	state        State
	errorPending bool
	destroyed    bool
	inTick       bool

	auth     authenticator
	logTrace bool

	receiveEnabled bool
	registered     bool
	handler        MessageHandler

	waiting    *EventQueue
	inProgress EventQueue

	// Present only while connected.
	tlsIO         amqpio.TLSIO
	saslMechanism amqpio.SASLMechanism
	saslIO        amqpio.IO
	conn          amqpio.Connection
	session       amqpio.Session
	cbs           amqpio.CBS
	senderLink    amqpio.Link
	sender        amqpio.MessageSender
	receiverLink  amqpio.Link
	receiver      amqpio.MessageReceiver

	containerID  string
	connectedAt  time.Time
	savedOptions amqpio.Options
}

// New validates cfg and returns a disconnected transport. No connection
// resources are created until the first DoWork.
func New(cfg Config) (t *Transport, err error) {
	if cfg.ownsCapture {
		defer func() {
			if err != nil {
				_ = log.Close(cfg.ProtocolLogger)
			}
		}()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cred, err := credential.New(cfg.credentialParams())
	if err != nil {
		return nil, err
	}
	addr, err := resolveAddresses(&cfg)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(cfg.MetricsRegisterer)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	provider := cfg.Provider
	if provider == nil {
		provider = amqpio.NewGoAMQP(
			amqpio.WithWebSockets(cfg.UseWebSockets),
			amqpio.WithLogger(cfg.Logger),
			amqpio.WithProtocolLogger(cfg.ProtocolLogger),
		)
	}

	t = &Transport{
		cred:           cred,
		addr:           addr,
		port:           servicePort(&cfg, provider),
		webSockets:     usesWebSockets(&cfg, provider),
		provider:       provider,
		logger:         logger.With("deviceID", cred.DeviceID()),
		protocolLogger: cfg.ProtocolLogger,
		ownsCapture:    cfg.ownsCapture,
		metrics:        m,
		clock:          clock,
		retry:          connection.NewRetryGate(false, cfg.Backoff),
		auth:           newAuthenticator(),
		waiting:        cfg.WaitingQueue,
		savedOptions:   amqpio.Options{},
	}
	t.logger.Debug("transport created", "host", addr.host, "port", t.port, "credential", cred.Kind().String())
	return t, nil
}

func servicePort(cfg *Config, provider amqpio.Provider) int {
	if cfg.Port > 0 {
		return cfg.Port
	}
	if p, ok := provider.(interface{ Port() int }); ok {
		return p.Port()
	}
	if cfg.UseWebSockets {
		return amqpio.PortWebSocket
	}
	return amqpio.PortAMQPS
}

func usesWebSockets(cfg *Config, provider amqpio.Provider) bool {
	if p, ok := provider.(interface{ WebSockets() bool }); ok {
		return p.WebSockets()
	}
	return cfg.UseWebSockets
}

// Destroy tears down every owned resource and returns in-progress events to
// the head of the waiting queue without invoking their callbacks. It does
// not block.
func (t *Transport) Destroy() {
	if t.destroyed {
		return
	}
	returned := t.teardown()
	t.setState(StateDisconnected, "destroyed")
	t.destroyed = true
	t.errorPending = false
	if t.ownsCapture {
		if err := log.Close(t.protocolLogger); err != nil {
			t.logger.Warn("closing protocol capture", "error", err)
		}
	}
	t.logger.Info("transport destroyed", "requeued", returned, "waiting", t.waiting.Len())
}

// DoWork advances the transport by one tick. handler receives the
// cloud-to-device messages dispatched during this tick; a nil handler
// releases them. DoWork must not be called from a callback.
func (t *Transport) DoWork(handler MessageHandler) {
	if t.destroyed || t.inTick {
		return
	}
	t.inTick = true
	t.handler = handler
	defer func() {
		t.inTick = false
		t.handler = nil
	}()

	now := t.clock.Now()

	switch t.state {
	case StateError:
		t.reconnect(now)
		return
	case StateDisconnected:
		t.tryConnect(now)
	}

	if t.state == StateAuthenticating || t.state == StateActive {
		t.service(now)
	}

	if t.conn != nil {
		t.conn.DoWork()
	}
}

func (t *Transport) tryConnect(now time.Time) {
	if !t.retry.Allow(now) {
		return
	}
	t.setState(StateConnecting, "")
	if err := t.connect(now); err != nil {
		delay := t.retry.Failed(now)
		t.logger.Warn("connect failed", "host", t.addr.host, "error", err, "retryIn", delay)
		t.captureError("connect", err)
		t.setState(StateDisconnected, "connect failed")
		return
	}
	if t.cred.UsesCBS() {
		t.setState(StateAuthenticating, "connected")
		return
	}
	t.retry.Succeeded()
	t.setState(StateActive, "connected")
}

// service drives authentication and the links of a live connection.
func (t *Transport) service(now time.Time) {
	if t.cred.UsesCBS() {
		if err := t.authenticate(now); err != nil {
			t.markError("authenticate", err)
			return
		}
		if t.state == StateAuthenticating {
			if t.auth.state != CBSAuthenticated {
				return
			}
			t.setState(StateActive, "authenticated")
		}
	}

	switch {
	case t.receiveEnabled && t.receiver == nil:
		if err := t.createReceiver(); err != nil {
			t.markError("create receiver", err)
			return
		}
	case !t.receiveEnabled && t.receiver != nil:
		t.destroyReceiver()
	}

	if t.sender == nil {
		if err := t.createSender(); err != nil {
			t.markError("create sender", err)
			return
		}
	}
	t.sendPending()
}

// Subscribe enables cloud-to-device messages. The receiver is created on
// the next tick once authenticated.
func (t *Transport) Subscribe() error {
	if t.destroyed {
		return ErrDestroyed
	}
	t.receiveEnabled = true
	return nil
}

// Unsubscribe disables cloud-to-device messages. An existing receiver is
// closed on the next tick.
func (t *Transport) Unsubscribe() {
	t.receiveEnabled = false
}

// ReceiveEnabled reports whether cloud-to-device messages are wanted.
func (t *Transport) ReceiveEnabled() bool { return t.receiveEnabled }

// SendStatus reports busy while any event is waiting or in progress.
func (t *Transport) SendStatus() SendStatus {
	if t.waiting.Len() > 0 || t.inProgress.Len() > 0 {
		return SendStatusBusy
	}
	return SendStatusIdle
}

// Register binds the device described by p to this transport. p must match
// the transport credential and only one device may be registered at a time.
func (t *Transport) Register(p credential.Params) error {
	if t.destroyed {
		return ErrDestroyed
	}
	if err := credential.ValidateDeviceID(p.DeviceID); err != nil {
		return err
	}
	if !t.cred.Matches(p) {
		return ErrCredentialMismatch
	}
	if t.registered {
		return ErrAlreadyRegistered
	}
	t.registered = true
	t.logger.Info("device registered")
	return nil
}

// Unregister frees the registration slot.
func (t *Transport) Unregister() error {
	if !t.registered {
		return ErrNotRegistered
	}
	t.registered = false
	t.logger.Info("device unregistered")
	return nil
}

// Registered reports whether a device is registered.
func (t *Transport) Registered() bool { return t.registered }

// State returns the controller state.
func (t *Transport) State() State { return t.state }

// CBSState returns the authenticator state.
func (t *Transport) CBSState() CBSState { return t.auth.state }

// DeviceID returns the device the transport serves.
func (t *Transport) DeviceID() string { return t.cred.DeviceID() }

package amqpio

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

// DefaultOperationTimeout bounds every blocking go-amqp call other than the
// connection handshake.
const DefaultOperationTimeout = 60 * time.Second

// GoAMQP is the Provider backed by github.com/Azure/go-amqp.
type GoAMQP struct {
	webSockets     bool
	logger         *slog.Logger
	protocolLogger log.Logger
	opTimeout      time.Duration

	wg sync.WaitGroup
}

// ProviderOption configures a GoAMQP provider.
type ProviderOption func(*GoAMQP)

// WithWebSockets tunnels connections over secure WebSockets.
func WithWebSockets(on bool) ProviderOption {
	return func(p *GoAMQP) { p.webSockets = on }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *GoAMQP) { p.logger = logger }
}

// WithProtocolLogger sets the protocol capture sink.
func WithProtocolLogger(logger log.Logger) ProviderOption {
	return func(p *GoAMQP) { p.protocolLogger = logger }
}

// WithOperationTimeout overrides DefaultOperationTimeout.
func WithOperationTimeout(d time.Duration) ProviderOption {
	return func(p *GoAMQP) {
		if d > 0 {
			p.opTimeout = d
		}
	}
}

// NewGoAMQP creates a provider.
func NewGoAMQP(opts ...ProviderOption) *GoAMQP {
	p := &GoAMQP{opTimeout: DefaultOperationTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WebSockets reports whether connections are tunnelled over WebSockets.
func (p *GoAMQP) WebSockets() bool { return p.webSockets }

// Port returns the service port matching the IO flavour.
func (p *GoAMQP) Port() int {
	if p.webSockets {
		return PortWebSocket
	}
	return PortAMQPS
}

// Wait blocks until every goroutine started by the provider has exited.
// Call it after destroying all connections.
func (p *GoAMQP) Wait() {
	p.wg.Wait()
}

// NewTLSIO returns a TLS IO for hostname:port.
func (p *GoAMQP) NewTLSIO(hostname string, port int) (TLSIO, error) {
	if hostname == "" {
		return nil, errors.New("tls io: hostname is required")
	}
	if port <= 0 || port > 65535 {
		return nil, errors.New("tls io: invalid port")
	}
	return &tlsIO{hostname: hostname, port: port, webSockets: p.webSockets, options: Options{}}, nil
}

// NewSASLMechanism returns the token-exchange mechanism. The token itself
// travels over CBS after an anonymous SASL exchange.
func (p *GoAMQP) NewSASLMechanism() (SASLMechanism, error) {
	return &saslMechanism{}, nil
}

// NewSASLIO layers mechanism over io.
func (p *GoAMQP) NewSASLIO(io TLSIO, mechanism SASLMechanism) (IO, error) {
	t, ok := io.(*tlsIO)
	if !ok {
		return nil, ErrForeignIO
	}
	if mechanism == nil {
		return nil, errors.New("sasl io: mechanism is required")
	}
	if t.destroyed {
		return nil, ErrDestroyed
	}
	return &saslIO{tls: t, mechanism: mechanism}, nil
}

// NewConnection starts opening a connection over io.
func (p *GoAMQP) NewConnection(io IO, hostname, containerID string, onState ConnectionStateFunc) (Connection, error) {
	var (
		t    *tlsIO
		sasl bool
	)
	switch v := io.(type) {
	case *tlsIO:
		t = v
	case *saslIO:
		if v.destroyed {
			return nil, ErrDestroyed
		}
		t = v.tls
		sasl = true
	default:
		return nil, ErrForeignIO
	}
	if t.destroyed {
		return nil, ErrDestroyed
	}

	tlsConfig, err := t.options.TLSConfig(t.hostname)
	if err != nil {
		return nil, err
	}

	return newConnection(p, connectionParams{
		host:           t.hostname,
		port:           t.port,
		virtualHost:    hostname,
		containerID:    containerID,
		sasl:           sasl,
		tlsConfig:      tlsConfig,
		proxy:          t.options.Proxy(),
		connectTimeout: t.options.ConnectTimeout(),
		onState:        onState,
	}), nil
}

func (p *GoAMQP) debugLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *GoAMQP) warnLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

type tlsIO struct {
	hostname   string
	port       int
	webSockets bool
	options    Options
	destroyed  bool
}

func (t *tlsIO) SetOption(name string, value any) error {
	if t.destroyed {
		return ErrDestroyed
	}
	return t.set(name, value)
}

func (t *tlsIO) set(name string, value any) error {
	if name == OptionProxyData && !t.webSockets {
		return ErrProxyRequiresWebSockets
	}
	return t.options.Set(name, value)
}

func (t *tlsIO) RetrieveOptions() Options {
	return t.options.Clone()
}

func (t *tlsIO) ApplyOptions(opts Options) error {
	if t.destroyed {
		return ErrDestroyed
	}
	var errs []error
	for name, value := range opts {
		if err := t.set(name, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *tlsIO) Destroy() {
	t.destroyed = true
}

type saslMechanism struct {
	destroyed bool
}

func (m *saslMechanism) Name() string { return "ANONYMOUS" }

func (m *saslMechanism) Destroy() { m.destroyed = true }

type saslIO struct {
	tls       *tlsIO
	mechanism SASLMechanism
	destroyed bool
}

func (s *saslIO) Destroy() { s.destroyed = true }

// Compile-time interface satisfaction checks.
var (
	_ Provider      = (*GoAMQP)(nil)
	_ TLSIO         = (*tlsIO)(nil)
	_ SASLMechanism = (*saslMechanism)(nil)
	_ IO            = (*saslIO)(nil)
)

package amqpio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"math"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/Azure/go-amqp"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

var errNotConnected = errors.New("amqp connection not established")

type connectionParams struct {
	host           string
	port           int
	virtualHost    string
	containerID    string
	sasl           bool
	tlsConfig      *tls.Config
	proxy          *url.URL
	connectTimeout time.Duration
	onState        ConnectionStateFunc
}

// connection adapts *amqp.Conn. Fields below the worker are owned by the
// worker goroutine; the rest belong to the DoWork caller.
type connection struct {
	p      *GoAMQP
	params connectionParams
	box    mailbox
	trace  atomic.Bool

	state     ConnectionState
	destroyed bool

	worker *worker
	ready  chan struct{}
	amqp   *amqp.Conn
}

func newConnection(p *GoAMQP, params connectionParams) *connection {
	c := &connection{
		p:      p,
		params: params,
		ready:  make(chan struct{}),
	}
	c.worker = newWorker(context.Background(), &p.wg)
	c.box.post(func() { c.transition(ConnectionOpening, "") })
	c.worker.submit(c.open)
	return c
}

func (c *connection) open(ctx context.Context) {
	defer close(c.ready)

	ctx, cancel := context.WithTimeout(ctx, c.params.connectTimeout)
	defer cancel()

	opts := &amqp.ConnOptions{
		ContainerID: c.params.containerID,
		HostName:    c.params.virtualHost,
	}
	if c.params.sasl {
		opts.SASLType = amqp.SASLTypeAnonymous()
	}

	var (
		conn *amqp.Conn
		err  error
	)
	if c.p.webSockets {
		var nc net.Conn
		nc, err = dialWebSocket(ctx, webSocketURL(c.params.host, c.params.port), c.params.tlsConfig, c.params.proxy)
		if err == nil {
			// TLS is already terminated by the WebSocket layer.
			conn, err = amqp.NewConn(ctx, nc, opts)
			if err != nil {
				nc.Close()
			}
		}
	} else {
		opts.TLSConfig = c.params.tlsConfig
		conn, err = amqp.Dial(ctx, fmt.Sprintf("amqps://%s:%d", c.params.host, c.params.port), opts)
	}
	if err != nil {
		c.fail("open connection", err)
		return
	}

	c.amqp = conn
	c.p.debugLog("amqp connection opened", "host", c.params.host, "container", c.params.containerID)
	c.box.post(func() { c.transition(ConnectionOpened, "") })
}

// fail runs on a worker goroutine.
func (c *connection) fail(op string, err error) {
	c.p.warnLog("amqp connection failed", "op", op, "host", c.params.host, "error", err)
	c.captureError(log.LayerTransport, op, err)
	reason := err.Error()
	c.box.post(func() { c.transition(ConnectionError, reason) })
}

func (c *connection) transition(state ConnectionState, reason string) {
	if c.destroyed || c.state == state {
		return
	}
	previous := c.state
	c.state = state
	c.captureState(log.StateEntityConnection, previous.String(), state.String(), reason)
	if c.params.onState != nil {
		c.params.onState(state, previous)
	}
}

func (c *connection) NewSession() (Session, error) {
	if c.destroyed {
		return nil, ErrDestroyed
	}
	s := &session{
		conn:     c,
		ready:    make(chan struct{}),
		incoming: math.MaxUint32,
		outgoing: math.MaxUint32,
	}
	if !c.worker.submit(s.begin) {
		return nil, ErrDestroyed
	}
	return s, nil
}

func (c *connection) DoWork() {
	if c.destroyed {
		return
	}
	c.box.drain()
}

func (c *connection) SetTrace(on bool) {
	c.trace.Store(on)
}

func (c *connection) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.worker.submit(func(context.Context) {
		if c.amqp != nil {
			if err := c.amqp.Close(); err != nil {
				c.p.debugLog("amqp connection close", "error", err)
			}
		}
	})
	c.worker.stop()
}

// session adapts *amqp.Session. go-amqp manages session flow control
// itself, so the requested windows are recorded for inspection only.
type session struct {
	conn      *connection
	incoming  uint32
	outgoing  uint32
	destroyed bool

	ready chan struct{}
	amqp  *amqp.Session
	err   error
}

// begin runs on the connection worker, after open.
func (s *session) begin(ctx context.Context) {
	defer close(s.ready)

	c := s.conn
	if c.amqp == nil {
		s.err = errNotConnected
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.p.opTimeout)
	defer cancel()

	s.amqp, s.err = c.amqp.NewSession(ctx, nil)
	if s.err != nil {
		c.fail("begin session", s.err)
	}
}

// await blocks an endpoint worker until the session is established.
func (s *session) await(ctx context.Context) (*amqp.Session, error) {
	select {
	case <-s.ready:
		return s.amqp, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *session) SetIncomingWindow(window uint32) error {
	if s.destroyed {
		return ErrDestroyed
	}
	s.incoming = window
	return nil
}

func (s *session) SetOutgoingWindow(window uint32) error {
	if s.destroyed {
		return ErrDestroyed
	}
	s.outgoing = window
	return nil
}

// Windows returns the requested incoming and outgoing windows.
func (s *session) Windows() (incoming, outgoing uint32) {
	return s.incoming, s.outgoing
}

func (s *session) NewLink(name string, role Role, source, target string) (Link, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	if source == "" || target == "" {
		return nil, ErrEmptyAddress
	}
	if name == "" {
		return nil, errors.New("link name is required")
	}
	return &link{
		session: s,
		name:    name,
		role:    role,
		source:  source,
		target:  target,
	}, nil
}

func (s *session) NewCBS(onState EndpointStateFunc) (CBS, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	return newCBS(s, onState), nil
}

func (s *session) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	c := s.conn
	c.worker.submit(func(ctx context.Context) {
		if s.amqp == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, c.p.opTimeout)
		defer cancel()
		if err := s.amqp.Close(ctx); err != nil {
			c.p.debugLog("amqp session close", "error", err)
		}
	})
}

type link struct {
	session        *session
	name           string
	role           Role
	source, target string

	maxMessageSize uint64
	settleMode     ReceiverSettleMode
	properties     map[string]any
	destroyed      bool
}

func (l *link) Name() string { return l.name }

// SetMaxMessageSize sets the limit sent on attach; zero means unbounded.
func (l *link) SetMaxMessageSize(size uint64) error {
	if l.destroyed {
		return ErrDestroyed
	}
	l.maxMessageSize = size
	return nil
}

func (l *link) SetReceiverSettleMode(mode ReceiverSettleMode) error {
	if l.destroyed {
		return ErrDestroyed
	}
	l.settleMode = mode
	return nil
}

func (l *link) SetAttachProperties(props map[string]any) error {
	if l.destroyed {
		return ErrDestroyed
	}
	l.properties = maps.Clone(props)
	return nil
}

func (l *link) NewMessageSender(onState EndpointStateFunc) (MessageSender, error) {
	if l.destroyed {
		return nil, ErrDestroyed
	}
	if l.role != RoleSender {
		return nil, ErrInvalidRole
	}
	return &sender{link: l, conn: l.session.conn, onState: onState}, nil
}

func (l *link) NewMessageReceiver(onState EndpointStateFunc) (MessageReceiver, error) {
	if l.destroyed {
		return nil, ErrDestroyed
	}
	if l.role != RoleReceiver {
		return nil, ErrInvalidRole
	}
	return &receiver{link: l, conn: l.session.conn, onState: onState}, nil
}

func (l *link) Destroy() { l.destroyed = true }

func (l *link) senderOptions() *amqp.SenderOptions {
	return &amqp.SenderOptions{
		Name:          l.name,
		SourceAddress: l.source,
		Properties:    l.properties,
	}
}

func (l *link) receiverOptions() *amqp.ReceiverOptions {
	mode := amqp.ReceiverSettleModeFirst
	if l.settleMode == SettleSecond {
		mode = amqp.ReceiverSettleModeSecond
	}
	return &amqp.ReceiverOptions{
		Name:           l.name,
		TargetAddress:  l.target,
		Properties:     l.properties,
		SettlementMode: &mode,
		Credit:         receiverCredit,
		MaxMessageSize: l.maxMessageSize,
	}
}

// isTerminal reports whether err leaves the link unusable.
func isTerminal(err error) bool {
	var (
		connErr    *amqp.ConnError
		sessionErr *amqp.SessionError
		linkErr    *amqp.LinkError
	)
	return errors.As(err, &connErr) ||
		errors.As(err, &sessionErr) ||
		errors.As(err, &linkErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Compile-time interface satisfaction checks.
var (
	_ Connection = (*connection)(nil)
	_ Session    = (*session)(nil)
	_ Link       = (*link)(nil)
)

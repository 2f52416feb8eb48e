package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/stretchr/testify/require"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/message"
)

var errFake = errors.New("fake failure")

// fakeProvider is a scriptable amqpio.Provider. Every destroy and close is
// appended to calls so tests can check teardown order.
type fakeProvider struct {
	calls []string

	failTLS        bool
	failConnection bool
	failSession    bool
	failCBS        bool
	failLink       map[amqpio.Role]bool

	tlsIOs []*fakeTLSIO
	conns  []*fakeConnection
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{failLink: map[amqpio.Role]bool{}}
}

func (p *fakeProvider) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakeProvider) NewTLSIO(hostname string, port int) (amqpio.TLSIO, error) {
	if p.failTLS {
		return nil, errFake
	}
	io := &fakeTLSIO{p: p, hostname: hostname, port: port, options: amqpio.Options{}}
	p.tlsIOs = append(p.tlsIOs, io)
	return io, nil
}

func (p *fakeProvider) NewSASLMechanism() (amqpio.SASLMechanism, error) {
	return &fakeSASLMechanism{p: p}, nil
}

func (p *fakeProvider) NewSASLIO(io amqpio.TLSIO, mechanism amqpio.SASLMechanism) (amqpio.IO, error) {
	return &fakeSASLIO{p: p, tls: io.(*fakeTLSIO)}, nil
}

func (p *fakeProvider) NewConnection(io amqpio.IO, hostname, containerID string, onState amqpio.ConnectionStateFunc) (amqpio.Connection, error) {
	if p.failConnection {
		return nil, errFake
	}
	_, sasl := io.(*fakeSASLIO)
	c := &fakeConnection{p: p, hostname: hostname, containerID: containerID, sasl: sasl, onState: onState}
	p.conns = append(p.conns, c)
	return c, nil
}

// conn returns the latest connection.
func (p *fakeProvider) conn() *fakeConnection {
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

type fakeTLSIO struct {
	p         *fakeProvider
	hostname  string
	port      int
	options   amqpio.Options
	destroyed bool
}

func (t *fakeTLSIO) SetOption(name string, value any) error { return t.options.Set(name, value) }
func (t *fakeTLSIO) RetrieveOptions() amqpio.Options        { return t.options.Clone() }

func (t *fakeTLSIO) ApplyOptions(opts amqpio.Options) error {
	for name, value := range opts {
		if err := t.options.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (t *fakeTLSIO) Destroy() {
	t.destroyed = true
	t.p.record("tls.destroy")
}

type fakeSASLMechanism struct{ p *fakeProvider }

func (m *fakeSASLMechanism) Name() string { return "ANONYMOUS" }
func (m *fakeSASLMechanism) Destroy()     { m.p.record("sasl_mechanism.destroy") }

type fakeSASLIO struct {
	p   *fakeProvider
	tls *fakeTLSIO
}

func (s *fakeSASLIO) Destroy() { s.p.record("sasl_io.destroy") }

type fakeConnection struct {
	p           *fakeProvider
	hostname    string
	containerID string
	sasl        bool
	onState     amqpio.ConnectionStateFunc

	trace     bool
	pumps     int
	pending   []func()
	destroyed bool
	sessions  []*fakeSession
}

func (c *fakeConnection) NewSession() (amqpio.Session, error) {
	if c.p.failSession {
		return nil, errFake
	}
	s := &fakeSession{conn: c}
	c.sessions = append(c.sessions, s)
	return s, nil
}

// DoWork runs callbacks queued with post.
func (c *fakeConnection) DoWork() {
	c.pumps++
	batch := c.pending
	c.pending = nil
	for _, fn := range batch {
		fn()
	}
}

func (c *fakeConnection) post(fn func()) { c.pending = append(c.pending, fn) }

func (c *fakeConnection) SetTrace(on bool) { c.trace = on }

func (c *fakeConnection) Destroy() {
	c.destroyed = true
	c.p.record("connection.destroy")
}

func (c *fakeConnection) session() *fakeSession {
	if len(c.sessions) == 0 {
		return nil
	}
	return c.sessions[len(c.sessions)-1]
}

type fakeSession struct {
	conn      *fakeConnection
	incoming  uint32
	outgoing  uint32
	links     []*fakeLink
	cbs       *fakeCBS
	destroyed bool
}

func (s *fakeSession) SetIncomingWindow(w uint32) error { s.incoming = w; return nil }
func (s *fakeSession) SetOutgoingWindow(w uint32) error { s.outgoing = w; return nil }

func (s *fakeSession) NewLink(name string, role amqpio.Role, source, target string) (amqpio.Link, error) {
	if s.conn.p.failLink[role] {
		return nil, errFake
	}
	l := &fakeLink{session: s, name: name, role: role, source: source, target: target, maxMessageSize: 1}
	s.links = append(s.links, l)
	return l, nil
}

func (s *fakeSession) NewCBS(onState amqpio.EndpointStateFunc) (amqpio.CBS, error) {
	if s.conn.p.failCBS {
		return nil, errFake
	}
	s.cbs = &fakeCBS{p: s.conn.p, onState: onState}
	return s.cbs, nil
}

func (s *fakeSession) Destroy() {
	s.destroyed = true
	s.conn.p.record("session.destroy")
}

// link returns the latest link with role.
func (s *fakeSession) link(role amqpio.Role) *fakeLink {
	for i := len(s.links) - 1; i >= 0; i-- {
		if s.links[i].role == role {
			return s.links[i]
		}
	}
	return nil
}

type fakeLink struct {
	session        *fakeSession
	name           string
	role           amqpio.Role
	source, target string

	maxMessageSize uint64
	settleMode     amqpio.ReceiverSettleMode
	properties     map[string]any
	destroyed      bool

	sender   *fakeSender
	receiver *fakeReceiver
}

func (l *fakeLink) Name() string { return l.name }

func (l *fakeLink) SetMaxMessageSize(size uint64) error {
	l.maxMessageSize = size
	return nil
}

func (l *fakeLink) SetReceiverSettleMode(mode amqpio.ReceiverSettleMode) error {
	l.settleMode = mode
	return nil
}

func (l *fakeLink) SetAttachProperties(props map[string]any) error {
	l.properties = props
	return nil
}

func (l *fakeLink) NewMessageSender(onState amqpio.EndpointStateFunc) (amqpio.MessageSender, error) {
	l.sender = &fakeSender{p: l.session.conn.p, onState: onState, failAt: -1}
	return l.sender, nil
}

func (l *fakeLink) NewMessageReceiver(onState amqpio.EndpointStateFunc) (amqpio.MessageReceiver, error) {
	l.receiver = &fakeReceiver{p: l.session.conn.p, onState: onState}
	return l.receiver, nil
}

func (l *fakeLink) Destroy() {
	l.destroyed = true
	l.session.conn.p.record("%s_link.destroy", roleName(l.role))
}

func roleName(r amqpio.Role) string {
	if r == amqpio.RoleSender {
		return "sender"
	}
	return "receiver"
}

type fakeSend struct {
	msg  *amqp.Message
	done func(amqpio.SendResult)
}

type fakeSender struct {
	p       *fakeProvider
	onState amqpio.EndpointStateFunc

	opened bool
	// failAt rejects the submission with this index; -1 never.
	failAt    int
	sends     []fakeSend
	destroyed int
}

func (s *fakeSender) Open() error {
	s.opened = true
	return nil
}

func (s *fakeSender) Send(msg *amqp.Message, done func(amqpio.SendResult)) error {
	if s.failAt >= 0 && len(s.sends) == s.failAt {
		return errFake
	}
	s.sends = append(s.sends, fakeSend{msg: msg, done: done})
	return nil
}

func (s *fakeSender) Close() error { return nil }

func (s *fakeSender) Destroy() {
	s.destroyed++
	s.p.record("sender.destroy")
}

// payloads returns the submitted payloads in order.
func (s *fakeSender) payloads() []string {
	out := make([]string, 0, len(s.sends))
	for _, send := range s.sends {
		out = append(out, string(send.msg.Data[0]))
	}
	return out
}

type fakeReceiver struct {
	p         *fakeProvider
	onState   amqpio.EndpointStateFunc
	onMessage func(*amqp.Message) amqpio.DeliveryOutcome

	closed    int
	destroyed int
}

func (r *fakeReceiver) Open(onMessage func(*amqp.Message) amqpio.DeliveryOutcome) error {
	r.onMessage = onMessage
	return nil
}

func (r *fakeReceiver) Close() error {
	r.closed++
	r.p.record("receiver.close")
	return nil
}

func (r *fakeReceiver) Destroy() {
	r.destroyed++
	r.p.record("receiver.destroy")
}

type fakePut struct {
	tokenType string
	audience  string
	token     string
	done      func(amqpio.CBSResult, int, string)
}

type fakeCBS struct {
	p       *fakeProvider
	onState amqpio.EndpointStateFunc
	onOpen  func(amqpio.OpenResult)

	failPut bool
	puts    []fakePut
}

func (c *fakeCBS) Open(onComplete func(amqpio.OpenResult)) error {
	c.onOpen = onComplete
	return nil
}

func (c *fakeCBS) PutToken(tokenType, audience, token string, done func(amqpio.CBSResult, int, string)) error {
	if c.failPut {
		return errFake
	}
	c.puts = append(c.puts, fakePut{tokenType: tokenType, audience: audience, token: token, done: done})
	return nil
}

func (c *fakeCBS) Close() error {
	c.p.record("cbs.close")
	return nil
}

func (c *fakeCBS) Destroy() { c.p.record("cbs.destroy") }

// reply completes the latest put-token.
func (c *fakeCBS) reply(result amqpio.CBSResult, status int) {
	put := c.puts[len(c.puts)-1]
	put.done(result, status, "")
}

// fakeClock is a settable Clock.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

const testDeviceKey = "c2VjcmV0LWRldmljZS1rZXk="

// harness wires a Transport to a fakeProvider.
type harness struct {
	t        *testing.T
	provider *fakeProvider
	queue    *EventQueue
	clock    *fakeClock
	tr       *Transport
	results  map[string][]SendResult
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		provider: newFakeProvider(),
		queue:    NewEventQueue(),
		clock:    &fakeClock{now: time.Unix(1_700_000_000, 0)},
		results:  map[string][]SendResult{},
	}
	cfg := Config{
		DeviceID:     "thermostat-7",
		DeviceKey:    testDeviceKey,
		HubName:      "contoso",
		HubSuffix:    "azure-devices.net",
		WaitingQueue: h.queue,
		Clock:        h.clock,
		Provider:     h.provider,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	tr, err := New(cfg)
	require.NoError(t, err)
	h.tr = tr
	t.Cleanup(tr.Destroy)
	return h
}

// push queues an event whose payload is also its result key.
func (h *harness) push(payload string) *Event {
	h.t.Helper()
	e := NewEvent(message.NewString(payload), func(r SendResult) {
		h.results[payload] = append(h.results[payload], r)
	})
	require.NoError(h.t, h.queue.Push(e))
	return e
}

func (h *harness) conn() *fakeConnection { return h.provider.conn() }

func (h *harness) session() *fakeSession { return h.conn().session() }

func (h *harness) cbs() *fakeCBS { return h.session().cbs }

func (h *harness) sender() *fakeSender {
	l := h.session().link(amqpio.RoleSender)
	if l == nil {
		return nil
	}
	return l.sender
}

func (h *harness) receiver() *fakeReceiver {
	l := h.session().link(amqpio.RoleReceiver)
	if l == nil {
		return nil
	}
	return l.receiver
}

func (h *harness) tick() { h.tr.DoWork(nil) }

// activate connects and completes the CBS exchange.
func (h *harness) activate() {
	h.t.Helper()
	h.tick()
	require.Equal(h.t, StateAuthenticating, h.tr.State())
	h.cbs().reply(amqpio.CBSOK, 200)
	h.tick()
	require.Equal(h.t, StateActive, h.tr.State())
}

// queuedPayloads returns the waiting queue payloads in order.
func queuedPayloads(t *testing.T, q *EventQueue) []string {
	t.Helper()
	var out []string
	for _, e := range q.Events() {
		text, err := e.Message().Text()
		require.NoError(t, err)
		out = append(out, text)
	}
	return out
}

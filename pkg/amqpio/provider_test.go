package amqpio

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

// captureLogger is called from adapter workers and the DoWork caller.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(event log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogger) snapshot() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]log.Event(nil), c.events...)
}

// closedPort returns a local port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// pump drives conn until cond holds or the deadline passes.
func pump(t *testing.T, conn Connection, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		conn.DoWork()
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProviderPorts(t *testing.T) {
	assert.Equal(t, PortAMQPS, NewGoAMQP().Port())
	assert.Equal(t, PortWebSocket, NewGoAMQP(WithWebSockets(true)).Port())
	assert.True(t, NewGoAMQP(WithWebSockets(true)).WebSockets())
}

func TestTLSIOOptions(t *testing.T) {
	p := NewGoAMQP()

	_, err := p.NewTLSIO("", 5671)
	assert.Error(t, err)
	_, err = p.NewTLSIO("hub", 0)
	assert.Error(t, err)

	io, err := p.NewTLSIO("hub", 5671)
	require.NoError(t, err)
	require.NoError(t, io.SetOption(OptionTLSVersion, 12))
	assert.ErrorIs(t, io.SetOption("bogus", 1), ErrUnknownOption)

	saved := io.RetrieveOptions()
	io.Destroy()
	assert.ErrorIs(t, io.SetOption(OptionTLSVersion, 12), ErrDestroyed)

	next, err := p.NewTLSIO("hub", 5671)
	require.NoError(t, err)
	require.NoError(t, next.ApplyOptions(saved))
	assert.Equal(t, int64(12), next.RetrieveOptions()[OptionTLSVersion])

	assert.Error(t, next.ApplyOptions(Options{"bogus": 1}))

	proxy := ProxyData{Host: "proxy.local", Port: 8888}
	assert.ErrorIs(t, next.SetOption(OptionProxyData, proxy), ErrProxyRequiresWebSockets)
	assert.ErrorIs(t, next.ApplyOptions(Options{OptionProxyData: proxy}), ErrProxyRequiresWebSockets)

	ws, err := NewGoAMQP(WithWebSockets(true)).NewTLSIO("hub", PortWebSocket)
	require.NoError(t, err)
	require.NoError(t, ws.SetOption(OptionProxyData, proxy))
	assert.Equal(t, proxy, ws.RetrieveOptions()[OptionProxyData])
}

func TestSASLIOLayering(t *testing.T) {
	p := NewGoAMQP()
	io, err := p.NewTLSIO("hub", 5671)
	require.NoError(t, err)
	mech, err := p.NewSASLMechanism()
	require.NoError(t, err)
	assert.Equal(t, "ANONYMOUS", mech.Name())

	sasl, err := p.NewSASLIO(io, mech)
	require.NoError(t, err)
	assert.NotNil(t, sasl)

	_, err = p.NewSASLIO(io, nil)
	assert.Error(t, err)

	_, err = p.NewConnection(foreignIO{}, "hub", "c", nil)
	assert.ErrorIs(t, err, ErrForeignIO)
}

type foreignIO struct{}

func (foreignIO) Destroy() {}

func TestConnectionFailureReachesErrorState(t *testing.T) {
	defer goleak.VerifyNone(t)

	capture := &captureLogger{}
	p := NewGoAMQP(WithProtocolLogger(capture), WithOperationTimeout(2*time.Second))

	io, err := p.NewTLSIO("127.0.0.1", closedPort(t))
	require.NoError(t, err)
	require.NoError(t, io.SetOption(OptionConnectTimeout, 2000))

	var states []ConnectionState
	conn, err := p.NewConnection(io, "127.0.0.1", "container-1", func(state, previous ConnectionState) {
		states = append(states, state)
	})
	require.NoError(t, err)

	sess, err := conn.NewSession()
	require.NoError(t, err)
	l, err := sess.NewLink("sender-link", RoleSender, "ingress", "amqps://127.0.0.1/devices/d/messages/events")
	require.NoError(t, err)
	snd, err := l.NewMessageSender(nil)
	require.NoError(t, err)
	require.NoError(t, snd.Open())

	sent := false
	require.NoError(t, snd.Send(&amqp.Message{Data: [][]byte{[]byte("x")}}, func(SendResult) { sent = true }))

	pump(t, conn, func() bool {
		return len(states) > 0 && states[len(states)-1] == ConnectionError
	})
	assert.Equal(t, []ConnectionState{ConnectionOpening, ConnectionError}, states)

	snd.Destroy()
	l.Destroy()
	sess.Destroy()
	conn.Destroy()
	io.Destroy()
	p.Wait()

	assert.False(t, sent, "a send that never reached the wire must not complete")

	var sawError bool
	for _, e := range capture.snapshot() {
		if e.Category == log.CategoryError && e.ConnectionID == "container-1" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestLinkRoleChecks(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewGoAMQP(WithOperationTimeout(time.Second))
	io, err := p.NewTLSIO("127.0.0.1", closedPort(t))
	require.NoError(t, err)
	conn, err := p.NewConnection(io, "127.0.0.1", "c", nil)
	require.NoError(t, err)
	sess, err := conn.NewSession()
	require.NoError(t, err)

	require.NoError(t, sess.SetIncomingWindow(1<<32-1))
	require.NoError(t, sess.SetOutgoingWindow(100))
	in, out := sess.(*session).Windows()
	assert.Equal(t, uint32(1<<32-1), in)
	assert.Equal(t, uint32(100), out)

	_, err = sess.NewLink("l", RoleSender, "", "target")
	assert.ErrorIs(t, err, ErrEmptyAddress)

	sendLink, err := sess.NewLink("l", RoleSender, "src", "dst")
	require.NoError(t, err)
	_, err = sendLink.NewMessageReceiver(nil)
	assert.ErrorIs(t, err, ErrInvalidRole)
	require.NoError(t, sendLink.SetMaxMessageSize(256*1024))
	require.NoError(t, sendLink.SetAttachProperties(map[string]any{"k": "v"}))
	sendOpts := sendLink.(*link).senderOptions()
	assert.Equal(t, "src", sendOpts.SourceAddress)
	assert.Equal(t, map[string]any{"k": "v"}, sendOpts.Properties)

	recvLink, err := sess.NewLink("r", RoleReceiver, "src", "dst")
	require.NoError(t, err)
	_, err = recvLink.NewMessageSender(nil)
	assert.ErrorIs(t, err, ErrInvalidRole)
	require.NoError(t, recvLink.SetMaxMessageSize(0))
	require.NoError(t, recvLink.SetReceiverSettleMode(SettleSecond))
	recvOpts := recvLink.(*link).receiverOptions()
	assert.Zero(t, recvOpts.MaxMessageSize)
	assert.Equal(t, "dst", recvOpts.TargetAddress)
	require.NotNil(t, recvOpts.SettlementMode)
	assert.Equal(t, amqp.ReceiverSettleModeSecond, *recvOpts.SettlementMode)

	rcv, err := recvLink.NewMessageReceiver(nil)
	require.NoError(t, err)
	assert.NoError(t, rcv.Close())
	rcv.Destroy()
	assert.ErrorIs(t, rcv.Open(nil), ErrDestroyed)

	sess.Destroy()
	conn.Destroy()
	_, err = conn.NewSession()
	assert.ErrorIs(t, err, ErrDestroyed)
	p.Wait()
}

package amqpio

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket endpoint parameters.
const (
	// WebSocketSubprotocol is the AMQP over WebSocket binding.
	WebSocketSubprotocol = "AMQPWSB10"

	// WebSocketPath is the service endpoint path.
	WebSocketPath = "/$iothub/websocket"
)

func webSocketURL(host string, port int) string {
	u := url.URL{
		Scheme: "wss",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   WebSocketPath,
	}
	return u.String()
}

// dialWebSocket opens a WebSocket to rawURL and returns it as a net.Conn
// carrying binary frames. A non-nil proxy is reached with HTTP CONNECT.
func dialWebSocket(ctx context.Context, rawURL string, tlsConfig *tls.Config, proxy *url.URL) (net.Conn, error) {
	dialer := websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		Subprotocols:     []string{WebSocketSubprotocol},
		HandshakeTimeout: DefaultConnectTimeout,
	}
	if proxy != nil {
		dialer.Proxy = http.ProxyURL(proxy)
	}
	ws, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if ws.Subprotocol() != WebSocketSubprotocol {
		ws.Close()
		return nil, fmt.Errorf("websocket: server did not accept subprotocol %s", WebSocketSubprotocol)
	}
	return newWSConn(ws), nil
}

// wsConn exposes a WebSocket as a byte stream. Reads and writes are each
// serialised since gorilla allows one concurrent reader and one writer.
type wsConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			kind, r, err := c.ws.NextReader()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
					return 0, io.EOF
				}
				return 0, err
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

var _ net.Conn = (*wsConn)(nil)

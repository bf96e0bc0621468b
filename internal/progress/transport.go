package progress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open progress transport. ReadMessage blocks until the next
// inbound frame and returns an error once the transport is closed or broken.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens progress transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the manager's progress endpoint with gorilla/websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebsocketDialer builds a dialer. A zero handshakeTimeout leaves the
// opening handshake unbounded; only the dial context can abort it.
func NewWebsocketDialer(handshakeTimeout time.Duration, header http.Header) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header: header.Clone(),
	}
}

// Dial opens a websocket connection to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

// ReadMessage skips binary frames; the manager only pushes UTF-8 JSON text.
func (c *websocketConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read progress frame: %w", err)
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *websocketConn) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close progress socket: %w", err)
	}
	return nil
}

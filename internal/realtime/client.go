package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single full-duplex message connection.
type Conn interface {
	// ReadMessage blocks until the next text frame or a terminal error.
	// A close handshake surfaces as a *CloseError.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text frame.
	WriteMessage(data []byte) error

	// Close sends a close frame with the given code and tears down the
	// connection.
	Close(code int, reason string) error

	// Open reports whether the transport still considers itself open.
	Open() bool
}

// Dialer opens connections. Swappable so tests can inject a fake
// transport.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WebsocketDialer dials over gorilla/websocket.
type WebsocketDialer struct {
	// HandshakeTimeout overrides the context deadline for the upgrade
	// handshake. Zero defers entirely to the context.
	HandshakeTimeout time.Duration
}

func (d *WebsocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrConnectTimeout
		}
		return nil, err
	}

	ws := &wsConn{conn: conn}
	ws.open.Store(true)
	return ws, nil
}

// wsConn wraps a gorilla connection with write serialization and an
// open flag.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	open    atomic.Bool
}

const writeTimeout = 5 * time.Second

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.open.Store(false)
			if ce, ok := err.(*websocket.CloseError); ok {
				return nil, &CloseError{
					Code:      ce.Code,
					Reason:    ce.Text,
					WasClean:  true,
					Timestamp: time.Now(),
				}
			}
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	if !c.open.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

func (c *wsConn) Close(code int, reason string) error {
	if !c.open.Swap(false) {
		return nil
	}

	c.writeMu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *wsConn) Open() bool {
	return c.open.Load()
}

// buildURL resolves the configured address into a dialable ws:// or
// wss:// URL and attaches the auth token as a query parameter.
func buildURL(base, origin, token string) (string, error) {
	target := base

	if strings.HasPrefix(base, "/") {
		// Path-only address: resolve against the configured origin.
		if origin == "" {
			return "", fmt.Errorf("relative url %q requires an origin", base)
		}
		o, err := url.Parse(origin)
		if err != nil {
			return "", fmt.Errorf("parse origin: %w", err)
		}
		o.Path = base
		target = o.String()
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

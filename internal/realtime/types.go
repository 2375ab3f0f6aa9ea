package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyClosed  = errors.New("connection already closed")
	ErrConnectTimeout = errors.New("connect timeout")
)

// Status is the connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// Message is the wire envelope, both directions, JSON text frames.
type Message struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	ProjectID string          `json:"projectId,omitempty"`
}

// Reserved message types for the heartbeat exchange.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Reserved channels.
const (
	ChannelDefault   = "default"
	ChannelSystem    = "system"
	ChannelHeartbeat = "heartbeat"
)

// controlAction is the payload of a system-channel subscribe/unsubscribe frame.
type controlAction struct {
	Action  string   `json:"action"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel"`
	Filters *Filters `json:"filters,omitempty"`
}

// Filters narrow a subscription. All present fields must match for a
// message to be delivered (conjunctive). MessageTypes is a membership
// test against Message.Type.
type Filters struct {
	UserID       string   `json:"userId,omitempty"`
	ProjectID    string   `json:"projectId,omitempty"`
	MessageTypes []string `json:"messageTypes,omitempty"`
}

// Matches reports whether msg passes every filter field that is set.
func (f *Filters) Matches(msg *Message) bool {
	if f == nil {
		return true
	}
	if f.UserID != "" && f.UserID != msg.UserID {
		return false
	}
	if f.ProjectID != "" && f.ProjectID != msg.ProjectID {
		return false
	}
	if len(f.MessageTypes) > 0 {
		found := false
		for _, t := range f.MessageTypes {
			if t == msg.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CloseError describes the close or error event that ended a connection.
type CloseError struct {
	Code      int
	Reason    string
	WasClean  bool
	Timestamp time.Time
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.Code, e.Reason)
}

// ConnectionState is a snapshot of the manager's connection state.
// Returned by value; mutating it has no effect on the manager.
type ConnectionState struct {
	Status            Status
	IsConnected       bool
	ReconnectAttempts int
	LastConnected     time.Time
	LastDisconnected  time.Time
	LastError         *CloseError
}

// Handlers are optional observation callbacks. All are advisory: they
// never influence the manager's control flow.
type Handlers struct {
	OnOpen            func()
	OnClose           func(CloseError)
	OnError           func(error)
	OnMessage         func(Message)
	OnReconnect       func(attempt int)
	OnReconnectFailed func()
}

// Config configures a Manager.
type Config struct {
	// URL is the server address. Absolute ws:// or wss:// URLs are used
	// as-is; a bare path is resolved against Origin with the scheme
	// upgraded http→ws / https→wss.
	URL string

	// Origin resolves path-only URLs (e.g. "https://app.example.com").
	Origin string

	ConnectTimeout    time.Duration // handshake deadline for a single dial
	HeartbeatInterval time.Duration // ping cadence while connected

	ReconnectBaseWait    time.Duration // first retry delay
	ReconnectMaxWait     time.Duration // backoff cap
	MaxReconnectAttempts int           // retry budget per outage

	// MaxQueueSize bounds the outbound queue. 0 means unbounded
	// (best-effort delivery, the original design); >0 drops the oldest
	// queued message when full.
	MaxQueueSize int

	// Dialer overrides the transport. Nil uses gorilla/websocket.
	Dialer Dialer
}

// Backoff and heartbeat defaults.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectBaseWait    = 1 * time.Second
	DefaultReconnectMaxWait     = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// DefaultConfig returns sensible defaults for the given URL.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ConnectTimeout:       DefaultConnectTimeout,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		ReconnectBaseWait:    DefaultReconnectBaseWait,
		ReconnectMaxWait:     DefaultReconnectMaxWait,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectBaseWait == 0 {
		c.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Dialer == nil {
		c.Dialer = &WebsocketDialer{}
	}
}

// nonRetryableCodes are close codes that must never trigger a reconnect:
// normal closure, going away, no status, and the application-reserved
// rejection range (e.g. auth rejected).
var nonRetryableCodes = map[int]struct{}{
	1000: {},
	1001: {},
	1005: {},
	4000: {},
	4001: {},
	4002: {},
	4003: {},
}

func retryable(code int) bool {
	_, ok := nonRetryableCodes[code]
	return !ok
}

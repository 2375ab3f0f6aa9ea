package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectBaseWait    = 1 * time.Second
	DefaultReconnectMaxWait     = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
)

func (c *GatewayConfig) applyDefaults() {
	// Connection defaults
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.ReconnectBaseWait == 0 {
		c.Connection.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Connection.ReconnectMaxWait == 0 {
		c.Connection.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Archiver defaults
	if c.Archiver.BatchSize == 0 {
		c.Archiver.BatchSize = DefaultBatchSize
	}
	if c.Archiver.FlushInterval == 0 {
		c.Archiver.FlushInterval = DefaultFlushInterval
	}
	if c.Archiver.BufferSize == 0 {
		c.Archiver.BufferSize = DefaultBufferSize
	}
}

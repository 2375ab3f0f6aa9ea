package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Channels   []ChannelConfig  `yaml:"channels"`
	Database   DBConfig         `yaml:"database"`
	Archiver   ArchiverConfig   `yaml:"archiver"`
}

// InstanceConfig identifies this gateway.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig locates the relay server and its credentials.
type ServerConfig struct {
	// URL is the WebSocket address. A bare path is resolved against
	// Origin.
	URL    string `yaml:"url"`
	Origin string `yaml:"origin"`

	// TokenEnv and TokenFile select the credential source. At most one
	// may be set; neither means unauthenticated.
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
}

// ConnectionConfig tunes the channel manager.
type ConnectionConfig struct {
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectBaseWait    time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait     time.Duration `yaml:"reconnect_max_wait"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`

	// MaxQueueSize bounds the outbound queue. 0 = unbounded.
	MaxQueueSize int `yaml:"max_queue_size"`
}

// ChannelConfig is one channel the gateway subscribes to and archives.
type ChannelConfig struct {
	Name string `yaml:"name"`

	// Optional filters; empty fields match everything.
	Types     []string `yaml:"types"`
	UserID    string   `yaml:"user_id"`
	ProjectID string   `yaml:"project_id"`
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ArchiverConfig tunes the message archiver.
type ArchiverConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

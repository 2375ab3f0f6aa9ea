package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if strings.HasPrefix(c.Server.URL, "/") && c.Server.Origin == "" {
		return errors.New("server.origin is required when server.url is a path")
	}
	if c.Server.TokenEnv != "" && c.Server.TokenFile != "" {
		return errors.New("server.token_env and server.token_file are mutually exclusive")
	}

	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}
	if c.Connection.ReconnectBaseWait > c.Connection.ReconnectMaxWait {
		return fmt.Errorf("connection.reconnect_base_wait (%s) cannot exceed reconnect_max_wait (%s)",
			c.Connection.ReconnectBaseWait, c.Connection.ReconnectMaxWait)
	}
	if c.Connection.MaxQueueSize < 0 {
		return errors.New("connection.max_queue_size must be >= 0")
	}

	if len(c.Channels) == 0 {
		return errors.New("at least one channel is required")
	}
	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d].name is required", i)
		}
		if _, dup := seen[ch.Name]; dup {
			return fmt.Errorf("channels[%d].name %q is duplicated", i, ch.Name)
		}
		seen[ch.Name] = struct{}{}
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Archiver.BatchSize < 1 {
		return errors.New("archiver.batch_size must be >= 1")
	}
	if c.Archiver.BufferSize < 1 {
		return errors.New("archiver.buffer_size must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

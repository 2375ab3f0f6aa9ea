package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
instance:
  id: test-gateway
server:
  url: wss://relay.example.com/ws
channels:
  - name: campaigns
    types: [campaign_update, campaign_done]
    project_id: p1
  - name: numbers
database:
  host: localhost
  port: 5432
  name: relay_test
  user: testuser
  password: testpass
`

func TestLoad(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-gateway" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-gateway")
	}
	if cfg.Server.URL != "wss://relay.example.com/ws" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "wss://relay.example.com/ws")
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("len(Channels) = %d, want 2", len(cfg.Channels))
	}
	if cfg.Channels[0].Name != "campaigns" {
		t.Errorf("Channels[0].Name = %q, want campaigns", cfg.Channels[0].Name)
	}
	if len(cfg.Channels[0].Types) != 2 {
		t.Errorf("len(Channels[0].Types) = %d, want 2", len(cfg.Channels[0].Types))
	}
	if cfg.Channels[0].ProjectID != "p1" {
		t.Errorf("Channels[0].ProjectID = %q, want p1", cfg.Channels[0].ProjectID)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost", cfg.Database.Host)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("RELAY_DB_PASSWORD", "s3cret")

	yaml := `
instance:
  id: env-gateway
server:
  url: wss://relay.example.com/ws
channels:
  - name: campaigns
database:
  host: localhost
  name: relay
  user: relay
  password: ${RELAY_DB_PASSWORD}
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "s3cret" {
		t.Errorf("Database.Password = %q, want expanded env value", cfg.Database.Password)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, validYAML))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Connection.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.Connection.ConnectTimeout)
	}
	if cfg.Connection.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.Connection.HeartbeatInterval)
	}
	if cfg.Connection.ReconnectBaseWait != 1*time.Second {
		t.Errorf("ReconnectBaseWait = %v, want 1s", cfg.Connection.ReconnectBaseWait)
	}
	if cfg.Connection.ReconnectMaxWait != 30*time.Second {
		t.Errorf("ReconnectMaxWait = %v, want 30s", cfg.Connection.ReconnectMaxWait)
	}
	if cfg.Connection.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d, want 10", cfg.Connection.MaxReconnectAttempts)
	}
	if cfg.Connection.MaxQueueSize != 0 {
		t.Errorf("MaxQueueSize = %d, want 0 (unbounded)", cfg.Connection.MaxQueueSize)
	}
	if cfg.Database.SSLMode != "prefer" {
		t.Errorf("Database.SSLMode = %q, want prefer", cfg.Database.SSLMode)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("Database.MaxConns = %d, want 10", cfg.Database.MaxConns)
	}
	if cfg.Archiver.BatchSize != 500 {
		t.Errorf("Archiver.BatchSize = %d, want 500", cfg.Archiver.BatchSize)
	}
	if cfg.Archiver.FlushInterval != time.Second {
		t.Errorf("Archiver.FlushInterval = %v, want 1s", cfg.Archiver.FlushInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr bool
	}{
		{"valid", func(c *GatewayConfig) {}, false},
		{"missing instance id", func(c *GatewayConfig) { c.Instance.ID = "" }, true},
		{"missing server url", func(c *GatewayConfig) { c.Server.URL = "" }, true},
		{"path url without origin", func(c *GatewayConfig) { c.Server.URL = "/ws" }, true},
		{"path url with origin", func(c *GatewayConfig) {
			c.Server.URL = "/ws"
			c.Server.Origin = "https://app.example.com"
		}, false},
		{"conflicting token sources", func(c *GatewayConfig) {
			c.Server.TokenEnv = "TOK"
			c.Server.TokenFile = "/tmp/tok"
		}, true},
		{"no channels", func(c *GatewayConfig) { c.Channels = nil }, true},
		{"duplicate channel", func(c *GatewayConfig) {
			c.Channels = append(c.Channels, ChannelConfig{Name: "campaigns"})
		}, true},
		{"unnamed channel", func(c *GatewayConfig) {
			c.Channels = append(c.Channels, ChannelConfig{})
		}, true},
		{"base wait above max", func(c *GatewayConfig) {
			c.Connection.ReconnectBaseWait = time.Minute
		}, true},
		{"negative queue cap", func(c *GatewayConfig) { c.Connection.MaxQueueSize = -1 }, true},
		{"missing db host", func(c *GatewayConfig) { c.Database.Host = "" }, true},
		{"missing db password", func(c *GatewayConfig) { c.Database.Password = "" }, true},
		{"min conns above max", func(c *GatewayConfig) {
			c.Database.MinConns = 20
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithDefaults(writeTempFile(t, validYAML))
			if err != nil {
				t.Fatalf("LoadWithDefaults failed: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

package realtime

import (
	"net/url"
	"strings"
	"testing"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		origin  string
		token   string
		want    string
		wantErr bool
	}{
		{
			name: "ws passthrough",
			base: "ws://relay.example.com/ws",
			want: "ws://relay.example.com/ws",
		},
		{
			name: "wss passthrough",
			base: "wss://relay.example.com/ws",
			want: "wss://relay.example.com/ws",
		},
		{
			name: "http upgraded",
			base: "http://relay.example.com/ws",
			want: "ws://relay.example.com/ws",
		},
		{
			name: "https upgraded",
			base: "https://relay.example.com/ws",
			want: "wss://relay.example.com/ws",
		},
		{
			name:   "path resolved against https origin",
			base:   "/ws",
			origin: "https://app.example.com",
			want:   "wss://app.example.com/ws",
		},
		{
			name:   "path resolved against http origin",
			base:   "/realtime/ws",
			origin: "http://localhost:3000",
			want:   "ws://localhost:3000/realtime/ws",
		},
		{
			name:  "token appended",
			base:  "wss://relay.example.com/ws",
			token: "tok-1",
			want:  "wss://relay.example.com/ws?token=tok-1",
		},
		{
			name:    "path without origin",
			base:    "/ws",
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			base:    "ftp://relay.example.com/ws",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildURL(tt.base, tt.origin, tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("buildURL = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildURL_TokenIsEscaped(t *testing.T) {
	got, err := buildURL("wss://relay.example.com/ws", "", "a b+c")
	if err != nil {
		t.Fatalf("buildURL failed: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if tok := u.Query().Get("token"); tok != "a b+c" {
		t.Errorf("token round-trip = %q, want %q", tok, "a b+c")
	}
	if strings.Contains(got, "a b") {
		t.Errorf("token not escaped in %q", got)
	}
}

func TestBuildURL_PreservesExistingQuery(t *testing.T) {
	got, err := buildURL("wss://relay.example.com/ws?v=2", "", "tok")
	if err != nil {
		t.Fatalf("buildURL failed: %v", err)
	}

	u, _ := url.Parse(got)
	if u.Query().Get("v") != "2" {
		t.Errorf("existing query lost: %q", got)
	}
	if u.Query().Get("token") != "tok" {
		t.Errorf("token missing: %q", got)
	}
}

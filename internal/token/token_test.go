package token

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	s := Static("abc123")
	if got := s.Token(); got != "abc123" {
		t.Errorf("Token() = %q, want %q", got, "abc123")
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("RELAY_TEST_TOKEN", "from-env")

	e := &Env{Var: "RELAY_TEST_TOKEN"}
	if got := e.Token(); got != "from-env" {
		t.Errorf("Token() = %q, want %q", got, "from-env")
	}
}

func TestEnv_Unset(t *testing.T) {
	e := &Env{Var: "RELAY_TEST_TOKEN_UNSET"}
	if got := e.Token(); got != "" {
		t.Errorf("Token() = %q, want empty", got)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  secret-token\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	f := &File{Path: path}
	if got := f.Token(); got != "secret-token" {
		t.Errorf("Token() = %q, want %q", got, "secret-token")
	}

	// Rotation is picked up on the next read.
	if err := os.WriteFile(path, []byte("rotated\n"), 0o600); err != nil {
		t.Fatalf("rewrite token file: %v", err)
	}
	if got := f.Token(); got != "rotated" {
		t.Errorf("Token() after rotation = %q, want %q", got, "rotated")
	}
}

func TestFile_MissingKeepsLastSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	f := &File{Path: path}
	if got := f.Token(); got != "v1" {
		t.Fatalf("Token() = %q, want v1", got)
	}

	os.Remove(path)
	if got := f.Token(); got != "v1" {
		t.Errorf("Token() after removal = %q, want last seen %q", got, "v1")
	}
}

// Package token supplies auth tokens for the connection URL.
//
// Sources are re-read on every connect, so a token rotated externally
// (e.g. a refreshed credential file) is picked up by the next attempt
// without restarting the gateway.
package token

import (
	"os"
	"strings"
	"sync"
)

// Static returns the same token forever. Useful for tests and
// fixed-credential deployments.
type Static string

func (s Static) Token() string {
	return string(s)
}

// Env reads the token from an environment variable on every call.
type Env struct {
	// Var is the environment variable name.
	Var string
}

func (e *Env) Token() string {
	return os.Getenv(e.Var)
}

// File reads the token from a file on every call, trimming surrounding
// whitespace. Read failures yield an empty token (the manager then
// connects unauthenticated and lets the server decide).
type File struct {
	// Path is the token file location.
	Path string

	mu       sync.Mutex
	lastSeen string
}

func (f *File) Token() string {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.lastSeen
	}

	tok := strings.TrimSpace(string(data))

	f.mu.Lock()
	f.lastSeen = tok
	f.mu.Unlock()
	return tok
}

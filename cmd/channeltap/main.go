// channeltap connects to a relay server, subscribes to channels given
// on the command line, and prints every delivered envelope. Debugging
// aid, no persistence.
//
// Usage: go run ./cmd/channeltap --url wss://relay.example.com/ws campaigns numbers
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaykit/gateway/internal/realtime"
	"github.com/relaykit/gateway/internal/token"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay WebSocket URL")
	tokenEnv := flag.String("token-env", "", "environment variable holding the auth token")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	flag.Parse()

	channels := flag.Args()
	if len(channels) == 0 {
		fmt.Fprintln(os.Stderr, "usage: channeltap [flags] CHANNEL [CHANNEL...]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	var tokens realtime.TokenSource
	if *tokenEnv != "" {
		tokens = &token.Env{Var: *tokenEnv}
	}

	mgr := realtime.NewManager(realtime.DefaultConfig(*url), tokens, logger)

	for _, ch := range channels {
		ch := ch
		mgr.Subscribe(ch, func(msg realtime.Message) {
			if *verbose {
				out, _ := json.MarshalIndent(msg, "", "  ")
				fmt.Printf("[%s] %s\n", ch, out)
				return
			}
			fmt.Printf("[%s] type=%s id=%s bytes=%d\n", ch, msg.Type, msg.MessageID, len(msg.Data))
		}, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected, streaming", "channels", channels)

	<-ctx.Done()
	mgr.Disconnect()
}

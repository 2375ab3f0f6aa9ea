// gateway subscribes to configured relay channels and archives every
// delivered message to PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaykit/gateway/internal/archive"
	"github.com/relaykit/gateway/internal/config"
	"github.com/relaykit/gateway/internal/database"
	"github.com/relaykit/gateway/internal/realtime"
	"github.com/relaykit/gateway/internal/token"
	"github.com/relaykit/gateway/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	writer := archive.NewWriter(cfg.Archiver, db, logger.With("component", "archive"))
	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start archive writer", "error", err)
		os.Exit(1)
	}

	mgr := realtime.NewManager(realtime.Config{
		URL:                  cfg.Server.URL,
		Origin:               cfg.Server.Origin,
		ConnectTimeout:       cfg.Connection.ConnectTimeout,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		ReconnectBaseWait:    cfg.Connection.ReconnectBaseWait,
		ReconnectMaxWait:     cfg.Connection.ReconnectMaxWait,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		MaxQueueSize:         cfg.Connection.MaxQueueSize,
	}, tokenSource(cfg.Server), logger.With("component", "realtime"))

	mgr.SetEventHandlers(realtime.Handlers{
		OnReconnect: func(attempt int) {
			logger.Warn("reconnecting to relay", "attempt", attempt)
		},
		OnReconnectFailed: func() {
			logger.Error("relay reconnect budget exhausted, waiting for restart")
		},
	})

	// Register subscriptions before connecting so the first open replays
	// them like any reconnect would.
	for _, ch := range cfg.Channels {
		mgr.Subscribe(ch.Name, writer.Enqueue, channelFilters(ch))
		logger.Info("archiving channel", "channel", ch.Name)
	}

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("initial connect failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	mgr.Disconnect()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := writer.Stop(stopCtx); err != nil {
		logger.Warn("archive writer stop", "error", err)
	}

	logger.Info("gateway stopped")
}

// tokenSource picks the credential source configured for the server.
func tokenSource(cfg config.ServerConfig) realtime.TokenSource {
	switch {
	case cfg.TokenEnv != "":
		return &token.Env{Var: cfg.TokenEnv}
	case cfg.TokenFile != "":
		return &token.File{Path: cfg.TokenFile}
	default:
		return nil
	}
}

// channelFilters converts channel config into subscription filters.
// Returns nil when no filter field is set so the subscription matches
// everything.
func channelFilters(ch config.ChannelConfig) *realtime.Filters {
	if len(ch.Types) == 0 && ch.UserID == "" && ch.ProjectID == "" {
		return nil
	}
	return &realtime.Filters{
		UserID:       ch.UserID,
		ProjectID:    ch.ProjectID,
		MessageTypes: ch.Types,
	}
}

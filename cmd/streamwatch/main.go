// streamwatch connects to the venue, subscribes the channels listed in the
// config, and streams deduplicated push updates to the console. When the
// journal is enabled, every forwarded update is also batch-written to
// Postgres.
//
// Usage: go run ./cmd/streamwatch --config configs/console.example.yaml
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
	"time"

	"github.com/asrivas/deribit-console/internal/config"
	"github.com/asrivas/deribit-console/internal/database"
	"github.com/asrivas/deribit-console/internal/journal"
	"github.com/asrivas/deribit-console/internal/rpc"
	"github.com/asrivas/deribit-console/internal/session"
	"github.com/asrivas/deribit-console/internal/sign"
	"github.com/asrivas/deribit-console/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/console.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if len(cfg.Channels) == 0 {
		logger.Error("no channels configured")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Optional journal sink.
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start journal writer", "error", err)
			os.Exit(1)
		}
	}

	record := func(channel string, data json.RawMessage) {
		if writer != nil {
			writer.Record(journal.Entry{
				Channel:    channel,
				Payload:    data,
				ReceivedAt: time.Now(),
			})
		}
	}

	handlers := session.Handlers{
		Ticker: func(channel string, data json.RawMessage) {
			logger.Info("ticker update", "channel", channel)
			record(channel, data)
		},
		Trades: func(channel string, data json.RawMessage) {
			logger.Info("trade update", "channel", channel)
			record(channel, data)
		},
		Book: func(channel string, data json.RawMessage) {
			logger.Info("book update", "channel", channel)
			record(channel, data)
		},
		Generic: func(channel string, data json.RawMessage) {
			logger.Info("update", "channel", channel)
			record(channel, data)
		},
		RemoteError: func(message string) {
			logger.Warn("remote error", "message", message)
		},
	}

	sess := session.New(session.Config{
		URL:              cfg.Venue.WSURL,
		LegacyRouting:    cfg.Session.LegacyRouting,
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		WriteTimeout:     cfg.Session.WriteTimeout,
		BufferSize:       cfg.Session.BufferSize,
	}, handlers, logger)

	// Private channels need the handshake; public ones work without it.
	if cfg.Venue.ClientID != "" {
		creds := &sign.Credentials{
			ClientID:     cfg.Venue.ClientID,
			ClientSecret: cfg.Venue.ClientSecret,
		}
		sess.OnAuthRequest(func() ([]byte, error) {
			ts, nonce, sig := creds.Sign()
			return rpc.Authorize(creds.ClientID, ts, sig, nonce), nil
		})
	}

	if err := sess.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if cfg.Venue.ClientID != "" {
		if err := sess.WaitAuthenticated(ctx); err != nil {
			logger.Error("authentication failed", "error", err)
			sess.Close()
			os.Exit(1)
		}
		logger.Info("authenticated")
	}

	for _, channel := range cfg.Channels {
		if err := sess.Subscribe(channel); err != nil {
			logger.Warn("subscribe failed", "channel", channel, "error", err)
			continue
		}
		logger.Info("subscribed", "channel", channel)
	}

	<-ctx.Done()

	logger.Info("shutting down")
	sess.Close()

	if writer != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		writer.Stop(stopCtx)
	}
}

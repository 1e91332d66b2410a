package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dhairyamittal28106-alt/nexus-relay/internal/relay"
	"github.com/dhairyamittal28106-alt/nexus-relay/internal/server"
	"github.com/dhairyamittal28106-alt/nexus-relay/internal/telemetry"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/config"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/logging"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/presence"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/rooms"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/store"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)
	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	var msgStore store.MessageStore
	if cfg.Store.Path != "" {
		pebbleStore, err := store.OpenPebble(cfg.Store.Path, logger)
		if err != nil {
			logger.Error("Failed to open message store", slog.Any("error", err))
			os.Exit(1)
		}
		msgStore = pebbleStore
	} else {
		logger.Warn("No store path configured; message history will not survive restarts")
		msgStore = store.NewMemory()
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	engine := relay.NewEngine(
		logger,
		presence.NewDirectory(logger),
		rooms.NewRouter(logger),
		msgStore,
		metrics,
		relay.Config{AppendTimeout: cfg.Store.AppendTimeout},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, engine, msgStore, registry)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

// Command alert-logger is the indexer daemon. It consumes processed
// alerts from the durable logger queue and posts each one to the
// full-text search backend for archival and querying.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"alerta"
	"alerta/internal/broker"
	"alerta/internal/config"
	"alerta/internal/indexer"
)

func main() {
	configPath := flag.String("config", "/etc/alerta/alert-logger.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("configuration failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("alert-logger starting",
		slog.String("version", alerta.Version),
		slog.String("index", cfg.Indexer.BaseURL))

	if cfg.Indexer.BaseURL == "" {
		logger.Error("indexer.base_url is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := broker.Connect(ctx, broker.Config{
		Name:        "alert-logger",
		Servers:     cfg.Broker.Servers,
		AlertQueue:  cfg.Broker.AlertQueue,
		NotifyTopic: cfg.Broker.NotifyTopic,
		LoggerQueue: cfg.Broker.LoggerQueue,
	}, logger)
	if err != nil {
		logger.Error("broker unreachable", slog.Any("error", err))
		os.Exit(1)
	}

	ix := indexer.New(cfg.Indexer.BaseURL, logger)
	if err := bus.Subscribe(ctx, cfg.Broker.LoggerQueue, "alert-logger", ix.HandleMessage); err != nil {
		logger.Error("subscribe failed", slog.Any("error", err))
		bus.Close()
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	cancel()
	bus.Close()
	logger.Info("alert-logger stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

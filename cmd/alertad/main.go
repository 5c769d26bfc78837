// Command alertad is the alert correlation and persistence server. It
// consumes alerts and heartbeats from the message bus, applies the
// transform and blackout rules, correlates each alert against the
// document store, advances the status machine and republishes processed
// alerts to the notify topic and the logger queue.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"alerta"
	"alerta/internal/broker"
	"alerta/internal/config"
	"alerta/internal/ops"
	"alerta/internal/proclock"
	"alerta/internal/rules"
	"alerta/internal/server"
	"alerta/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "/etc/alerta/alertad.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("configuration failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("alertad starting",
		slog.String("version", alerta.Version),
		slog.Int("workers", cfg.Server.Workers))

	if cfg.Store.DSN == "" {
		logger.Error("store.dsn is required")
		os.Exit(1)
	}

	// Single-instance enforcement: a held lock means a live peer.
	if cfg.Server.LockFile != "" {
		lock, err := proclock.Acquire(cfg.Server.LockFile)
		if err != nil {
			logger.Error("another instance is running", slog.Any("error", err))
			os.Exit(1)
		}
		defer lock.Release()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, cfg.Store.DSN)
	if err != nil {
		logger.Error("store unreachable", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("store connected")

	bus, err := broker.Connect(ctx, broker.Config{
		Name:        "alertad",
		Servers:     cfg.Broker.Servers,
		AlertQueue:  cfg.Broker.AlertQueue,
		NotifyTopic: cfg.Broker.NotifyTopic,
		LoggerQueue: cfg.Broker.LoggerQueue,
	}, logger)
	if err != nil {
		logger.Error("broker unreachable", slog.Any("error", err))
		st.Close()
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := server.NewMetrics(registry)
	engine := rules.New(cfg.Server.RulesFile, logger)

	srv := server.New(server.Config{
		Workers:        cfg.Server.Workers,
		NotifyTopic:    cfg.Broker.NotifyTopic,
		LoggerQueue:    cfg.Broker.LoggerQueue,
		DefaultTimeout: cfg.Server.DefaultTimeout,
	}, logger, st, bus, engine, metrics)
	srv.Start(ctx)

	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()
	if err := bus.Subscribe(consumeCtx, cfg.Broker.AlertQueue, "alertad", srv.HandleMessage); err != nil {
		logger.Error("subscribe failed", slog.Any("error", err))
		bus.Close()
		st.Close()
		os.Exit(1)
	}

	opsSrv := &http.Server{
		Addr:    cfg.Server.OpsAddr,
		Handler: ops.NewRouter(ops.NewServer(st, bus, logger), registry),
	}
	go func() {
		logger.Info("ops listener starting", slog.String("addr", cfg.Server.OpsAddr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops listener failed", slog.Any("error", err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	// Stop consuming first, then drain the workers, then let the broker
	// flush outstanding acknowledgements.
	stopConsuming()
	srv.Stop()
	bus.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops listener shutdown failed", slog.Any("error", err))
	}

	st.Close()
	logger.Info("alertad stopped")
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

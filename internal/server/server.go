// Package server implements the alertad processing pipeline: the ingress
// dispatcher, the internal FIFO queue, the worker pool, the correlation
// engine, the publisher and the metrics recorder.
package server

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"alerta/internal/alert"
	"alerta/internal/rules"
)

// Store is the persistence surface the pipeline depends on, satisfied by
// *store.Store. The three correlation methods return store.ErrNoMatch as a
// classification signal; everything else is a hard failure.
type Store interface {
	UpdateDuplicate(ctx context.Context, a *alert.Alert) (*alert.Alert, error)
	UpdateCorrelated(ctx context.Context, a *alert.Alert) (*alert.Alert, error)
	CreateAlert(ctx context.Context, doc *alert.Alert) (*alert.Alert, error)
	SetStatus(ctx context.Context, id string, status alert.Status, at alert.Time) error
	UpsertHeartbeat(ctx context.Context, hb *alert.Heartbeat) error
	UpsertTimer(ctx context.Context, group, name, title, description string, elapsed time.Duration) error
	UpsertGauge(ctx context.Context, group, name, title, description string, value int64) error
	IncrCounter(ctx context.Context, group, name, title, description string) error
}

// Bus is the outbound half of the broker client.
type Bus interface {
	Publish(subject string, headers map[string]string, body []byte) error
	IsConnected() bool
}

// Config tunes the pipeline.
type Config struct {
	// Workers is the number of goroutines draining the internal queue.
	Workers int

	// NotifyTopic and LoggerQueue are the two downstream destinations.
	NotifyTopic string
	LoggerQueue string

	// DefaultTimeout is the expiry window in seconds applied to alerts
	// that carry no timeout of their own.
	DefaultTimeout int
}

// Server wires the pipeline components together. One Server runs per
// process; its workers share the store and the broker connection.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	store   Store
	bus     Bus
	rules   *rules.Engine
	queue   *Queue
	metrics *Metrics

	// origin identifies this server instance in its self-heartbeat.
	origin string

	wg sync.WaitGroup
}

// New assembles a Server. The rules engine may be backed by an empty path,
// which disables rule processing.
func New(cfg Config, logger *slog.Logger, store Store, bus Bus, engine *rules.Engine, metrics *Metrics) *Server {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		bus:     bus,
		rules:   engine,
		queue:   NewQueue(),
		metrics: metrics,
		origin:  "alerta/" + host,
	}
}

// Start launches the worker pool. ctx is handed to every worker and bounds
// the store and broker calls made while processing.
func (s *Server) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.logger.Info("worker pool started", slog.Int("workers", s.cfg.Workers))
}

// Stop shuts the pool down by pushing one sentinel per worker and waiting
// for all of them to exit. Alerts already being processed finish; alerts
// still queued behind the sentinels are abandoned.
func (s *Server) Stop() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.queue.Push(nil)
	}
	s.wg.Wait()
	s.logger.Info("worker pool stopped")
}

// QueueLen reports the internal queue depth.
func (s *Server) QueueLen() int {
	return s.queue.Len()
}

// worker drains the queue one alert at a time until it observes a
// sentinel. A failure inside process never stops the worker.
func (s *Server) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		a := s.queue.Pop()
		if a == nil {
			s.logger.Debug("worker exiting", slog.Int("worker", id))
			return
		}
		s.process(ctx, a)
		s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	}
}

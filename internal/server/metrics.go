package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"alerta"
	"alerta/internal/alert"
)

// Management stat wording, refreshed on every upsert.
const (
	statProcessedTitle  = "Alert process rate and duration"
	statProcessedDesc   = "Time taken to process the alert"
	statReceivedTitle   = "Alert receive rate and latency"
	statReceivedDesc    = "Time taken for alert to be received by the server"
	statQueueTitle      = "Alert internal queue length"
	statQueueDesc       = "Length of internal alert queue"
	statSuppressedTitle = "Alert blackout suppressions"
	statSuppressedDesc  = "Number of alerts suppressed by blackout rules"
)

// Metrics holds the process-local Prometheus instruments, served by the
// ops listener. The durable management stats live in the store and are
// written by recordStats.
type Metrics struct {
	Processed  *prometheus.CounterVec
	Suppressed prometheus.Counter
	QueueDepth prometheus.Gauge
	Duration   prometheus.Histogram
}

// NewMetrics registers the pipeline instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alerta_alerts_processed_total",
			Help: "Alerts processed, by correlation outcome.",
		}, []string{"outcome"}),
		Suppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "alerta_alerts_suppressed_total",
			Help: "Alerts suppressed by blackout rules.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "alerta_queue_depth",
			Help: "Length of the internal alert queue.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "alerta_process_duration_seconds",
			Help:    "End-to-end processing time per alert.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// recordStats upserts the durable management stats for one processed alert
// and refreshes the server's own heartbeat. Stat failures are logged and
// do not fail the alert.
func (s *Server) recordStats(ctx context.Context, a *alert.Alert, workStart time.Time) {
	err := s.store.UpsertTimer(ctx, "alerts", "processed",
		statProcessedTitle, statProcessedDesc, time.Since(workStart))
	if err != nil {
		s.logger.Warn("processed timer update failed", slog.Any("error", err))
	}

	// Receive latency is not clamped: clock skew at the source shows up
	// as a negative contribution.
	latency := a.ReceiveTime.Sub(a.CreateTime.Time)
	err = s.store.UpsertTimer(ctx, "alerts", "received",
		statReceivedTitle, statReceivedDesc, latency)
	if err != nil {
		s.logger.Warn("received timer update failed", slog.Any("error", err))
	}

	err = s.store.UpsertGauge(ctx, "alerts", "queue",
		statQueueTitle, statQueueDesc, int64(s.queue.Len()))
	if err != nil {
		s.logger.Warn("queue gauge update failed", slog.Any("error", err))
	}

	now := alert.Now()
	hb := &alert.Heartbeat{
		Origin:      s.origin,
		Version:     alerta.Version,
		CreateTime:  now,
		ReceiveTime: now,
	}
	if err := s.store.UpsertHeartbeat(ctx, hb); err != nil {
		s.logger.Warn("self-heartbeat failed", slog.Any("error", err))
	}
}

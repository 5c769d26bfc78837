package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"alerta/internal/alert"
	"alerta/internal/store"
)

// Correlation outcomes, used as the Prometheus outcome label.
const (
	outcomeNew            = "new"
	outcomeDuplicate      = "duplicate"
	outcomeSeverityChange = "severity_change"
)

// classifyRetries bounds how often a worker re-classifies after losing an
// atomic-update race before the alert is dropped.
const classifyRetries = 3

// process runs one alert end-to-end: rules, expiry resolution,
// correlation, status machine, publish and metrics. Failures are logged
// and never propagate to the worker loop.
func (s *Server) process(ctx context.Context, a *alert.Alert) {
	workStart := time.Now()

	if s.rules.Apply(a) {
		s.suppress(ctx, a)
		return
	}

	// The sender's severityCode is advisory only.
	a.SeverityCode = a.Severity.Code()
	s.resolveExpireTime(a)

	doc, outcome, err := s.correlate(ctx, a)
	if err != nil {
		s.logger.Error("alert dropped",
			slog.String("id", a.ID),
			slog.String("resource", a.Resource),
			slog.String("event", a.Event),
			slog.Any("error", err))
		return
	}

	// Duplicates are persisted but not forwarded.
	if outcome != outcomeDuplicate {
		s.publish(ctx, doc)
	}

	s.metrics.Processed.WithLabelValues(outcome).Inc()
	s.metrics.Duration.Observe(time.Since(workStart).Seconds())
	s.recordStats(ctx, a, workStart)

	s.logger.Info("alert processed",
		slog.String("id", a.ID),
		slog.String("resource", doc.Resource),
		slog.String("event", doc.Event),
		slog.String("severity", string(doc.Severity)),
		slog.String("status", string(doc.Status)),
		slog.String("outcome", outcome))
}

// suppress records a blackout hit and drops the alert: no persistence, no
// publish.
func (s *Server) suppress(ctx context.Context, a *alert.Alert) {
	s.metrics.Suppressed.Inc()
	err := s.store.IncrCounter(ctx, "alerts", "suppressed", statSuppressedTitle, statSuppressedDesc)
	if err != nil {
		s.logger.Warn("suppressed counter update failed", slog.Any("error", err))
	}
	s.logger.Info("alert suppressed",
		slog.String("id", a.ID),
		slog.String("resource", a.Resource),
		slog.String("event", a.Event),
		slog.String("origin", a.Origin))
}

// resolveExpireTime applies the timeout rules: an absent timeout takes the
// server default, zero means the alert never expires, and a positive
// timeout puts expireTime exactly timeout seconds after createTime.
func (s *Server) resolveExpireTime(a *alert.Alert) {
	timeout := s.cfg.DefaultTimeout
	if a.Timeout != nil {
		timeout = *a.Timeout
	}
	a.Timeout = &timeout

	if timeout > 0 {
		expire := a.CreateTime.Add(time.Duration(timeout) * time.Second)
		a.ExpireTime = &expire
	} else {
		a.ExpireTime = nil
	}
}

// correlate classifies a as duplicate, severity-change or new and performs
// the matching persistence. Each path is a single atomic statement keyed
// on the alert identity; losing a race against a concurrent worker
// surfaces as store.ErrNoMatch and triggers re-classification against the
// winner's document.
func (s *Server) correlate(ctx context.Context, a *alert.Alert) (*alert.Alert, string, error) {
	for attempt := 0; attempt < classifyRetries; attempt++ {
		doc, err := s.store.UpdateDuplicate(ctx, a)
		if err == nil {
			// The stored status may be stale (e.g. EXPIRED while the
			// condition persists); the status machine corrects it even
			// though the severity is unchanged.
			if status, changed := alert.DuplicateStatus(doc.Severity, doc.Status); changed {
				s.electStatus(ctx, doc, status)
			}
			return doc, outcomeDuplicate, nil
		}
		if !errors.Is(err, store.ErrNoMatch) {
			return nil, "", err
		}

		doc, err = s.store.UpdateCorrelated(ctx, a)
		if err == nil {
			if status, changed := alert.SeverityChangeStatus(doc.Severity, doc.PreviousSeverity); changed {
				s.electStatus(ctx, doc, status)
			}
			return doc, outcomeSeverityChange, nil
		}
		if !errors.Is(err, store.ErrNoMatch) {
			return nil, "", err
		}

		doc, err = s.store.CreateAlert(ctx, newDocument(a))
		if err == nil {
			return doc, outcomeNew, nil
		}
		if !errors.Is(err, store.ErrNoMatch) {
			return nil, "", err
		}
		// Another worker inserted the same identity first; re-classify
		// against its document.
	}
	return nil, "", fmt.Errorf("classification raced %d times", classifyRetries)
}

// electStatus persists a status elected by the status machine, appending
// the status-history entry in the same statement.
func (s *Server) electStatus(ctx context.Context, doc *alert.Alert, status alert.Status) {
	if err := s.store.SetStatus(ctx, doc.ID, status, alert.Now()); err != nil {
		s.logger.Warn("status update failed",
			slog.String("id", doc.ID),
			slog.String("status", string(status)),
			slog.Any("error", err))
		return
	}
	doc.Status = status
}

// newDocument builds the document inserted on the new path: counters
// zeroed, previous severity UNKNOWN, initial status from the severity, and
// the first event- and status-history entries.
func newDocument(a *alert.Alert) *alert.Alert {
	doc := *a
	doc.LastReceiveID = a.ID
	doc.LastReceiveTime = a.ReceiveTime
	doc.PreviousSeverity = alert.SeverityUnknown
	doc.Repeat = false
	doc.DuplicateCount = 0
	doc.Status = alert.InitialStatus(a.Severity)
	doc.History = []alert.HistoryEntry{
		alert.EventHistory(a),
		alert.StatusHistory(doc.Status, alert.Now()),
	}
	return &doc
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"alerta/internal/alert"
)

// publish forwards the processed document to the notify topic and the
// logger queue with type and correlation-id headers. Before each send it
// waits for the broker connection in one-second steps. The persistence is
// already committed at this point, so a publish failure is logged and
// never rolled back; subscribers that must not miss alerts consume the
// durable logger queue.
func (s *Server) publish(ctx context.Context, doc *alert.Alert) {
	// Forwarded copies omit the audit trail.
	forwarded := *doc
	forwarded.History = nil

	body, err := json.Marshal(&forwarded)
	if err != nil {
		s.logger.Error("encode outbound alert failed",
			slog.String("id", doc.ID), slog.Any("error", err))
		return
	}
	headers := map[string]string{
		"type":           doc.Type,
		"correlation-id": doc.ID,
	}

	for _, dest := range []string{s.cfg.NotifyTopic, s.cfg.LoggerQueue} {
		if err := s.waitConnected(ctx); err != nil {
			s.logger.Warn("publish abandoned, shutting down",
				slog.String("destination", dest), slog.String("id", doc.ID))
			return
		}
		if err := s.bus.Publish(dest, headers, body); err != nil {
			s.logger.Error("publish failed",
				slog.String("destination", dest),
				slog.String("id", doc.ID),
				slog.Any("error", err))
		}
	}
}

// waitConnected polls the broker connection once a second until it is up
// or ctx is cancelled.
func (s *Server) waitConnected(ctx context.Context) error {
	for !s.bus.IsConnected() {
		s.logger.Warn("waiting for broker connection")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

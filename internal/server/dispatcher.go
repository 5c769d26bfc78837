package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"alerta/internal/alert"
	"alerta/internal/broker"
)

// HandleMessage is the ingress dispatcher, invoked by the broker client
// for every message on the alert queue. It stamps receiveTime with the
// server clock, routes heartbeats straight to the store and enqueues
// alerts for the worker pool. Undecodable bodies are reported as
// broker.ErrBadMessage so they are dropped rather than redelivered
// forever.
func (s *Server) HandleMessage(ctx context.Context, body []byte) error {
	receiveTime := alert.Now()

	typ, err := alert.PeekType(body)
	if err != nil {
		s.logger.Error("dropping undecodable message", slog.Any("error", err))
		return fmt.Errorf("%w: %v", broker.ErrBadMessage, err)
	}

	if typ == alert.TypeHeartbeat {
		return s.handleHeartbeat(ctx, body, receiveTime)
	}

	var a alert.Alert
	if err := json.Unmarshal(body, &a); err != nil {
		s.logger.Error("dropping undecodable alert", slog.Any("error", err))
		return fmt.Errorf("%w: decode alert: %v", broker.ErrBadMessage, err)
	}
	if err := a.Validate(); err != nil {
		s.logger.Error("dropping invalid alert",
			slog.String("id", a.ID), slog.Any("error", err))
		return fmt.Errorf("%w: invalid alert: %v", broker.ErrBadMessage, err)
	}

	a.ReceiveTime = receiveTime
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}

	s.queue.Push(&a)
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	s.logger.Debug("alert queued",
		slog.String("id", a.ID),
		slog.String("resource", a.Resource),
		slog.String("event", a.Event))
	return nil
}

// handleHeartbeat is the heartbeat side path: upsert by origin, no
// queueing. A store failure requeues the message for redelivery.
func (s *Server) handleHeartbeat(ctx context.Context, body []byte, receiveTime alert.Time) error {
	var hb alert.Heartbeat
	if err := json.Unmarshal(body, &hb); err != nil {
		s.logger.Error("dropping undecodable heartbeat", slog.Any("error", err))
		return fmt.Errorf("%w: decode heartbeat: %v", broker.ErrBadMessage, err)
	}
	hb.ReceiveTime = receiveTime

	if err := s.store.UpsertHeartbeat(ctx, &hb); err != nil {
		s.logger.Error("heartbeat upsert failed",
			slog.String("origin", hb.Origin), slog.Any("error", err))
		return err
	}
	s.logger.Debug("heartbeat recorded", slog.String("origin", hb.Origin))
	return nil
}

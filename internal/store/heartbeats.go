package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"alerta/internal/alert"
)

// --- Heartbeats ---

// UpsertHeartbeat inserts or refreshes the liveness record keyed by
// origin. Both inbound heartbeat messages and the server's own
// self-heartbeat after each processed alert land here.
func (s *Store) UpsertHeartbeat(ctx context.Context, hb *alert.Heartbeat) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO heartbeats (origin, version, create_time, receive_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (origin) DO UPDATE SET
			version      = EXCLUDED.version,
			create_time  = EXCLUDED.create_time,
			receive_time = EXCLUDED.receive_time`,
		hb.Origin, hb.Version, hb.CreateTime.Time, hb.ReceiveTime.Time,
	)
	if err != nil {
		return fmt.Errorf("upsert heartbeat %s: %w", hb.Origin, err)
	}
	return nil
}

// GetHeartbeat returns the heartbeat record for origin, or ErrNoMatch when
// none has been recorded.
func (s *Store) GetHeartbeat(ctx context.Context, origin string) (*alert.Heartbeat, error) {
	var (
		hb          alert.Heartbeat
		createTime  time.Time
		receiveTime time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT origin, version, create_time, receive_time
		FROM   heartbeats
		WHERE  origin = $1`, origin,
	).Scan(&hb.Origin, &hb.Version, &createTime, &receiveTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("get heartbeat %s: %w", origin, err)
	}
	hb.CreateTime = alert.At(createTime)
	hb.ReceiveTime = alert.At(receiveTime)
	return &hb, nil
}

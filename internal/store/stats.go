package store

import (
	"context"
	"fmt"
	"time"
)

// Stat is one management stat row, keyed by (group, name, type). Timer
// rows accumulate count and totalTime, gauge rows carry the latest value,
// counter rows only count.
type Stat struct {
	Group       string `json:"group"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Count       int64  `json:"count,omitempty"`
	TotalTime   int64  `json:"totalTime,omitempty"`
	Value       int64  `json:"value,omitempty"`
}

// --- Management stats ---

// UpsertTimer increments the timer's invocation count and adds elapsed to
// its running total, in milliseconds. Title and description refresh on
// every write so redeployed wording propagates without a migration.
func (s *Store) UpsertTimer(ctx context.Context, group, name, title, description string, elapsed time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO status ("group", name, type, title, description, count, total_time)
		VALUES ($1, $2, 'timer', $3, $4, 1, $5)
		ON CONFLICT ("group", name, type) DO UPDATE SET
			title       = EXCLUDED.title,
			description = EXCLUDED.description,
			count       = status.count + 1,
			total_time  = status.total_time + EXCLUDED.total_time`,
		group, name, title, description, elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert timer %s.%s: %w", group, name, err)
	}
	return nil
}

// UpsertGauge sets the gauge to value, replacing the previous reading.
func (s *Store) UpsertGauge(ctx context.Context, group, name, title, description string, value int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO status ("group", name, type, title, description, value)
		VALUES ($1, $2, 'gauge', $3, $4, $5)
		ON CONFLICT ("group", name, type) DO UPDATE SET
			title       = EXCLUDED.title,
			description = EXCLUDED.description,
			value       = EXCLUDED.value`,
		group, name, title, description, value,
	)
	if err != nil {
		return fmt.Errorf("upsert gauge %s.%s: %w", group, name, err)
	}
	return nil
}

// IncrCounter increments the counter by one.
func (s *Store) IncrCounter(ctx context.Context, group, name, title, description string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO status ("group", name, type, title, description, count)
		VALUES ($1, $2, 'counter', $3, $4, 1)
		ON CONFLICT ("group", name, type) DO UPDATE SET
			title       = EXCLUDED.title,
			description = EXCLUDED.description,
			count       = status.count + 1`,
		group, name, title, description,
	)
	if err != nil {
		return fmt.Errorf("increment counter %s.%s: %w", group, name, err)
	}
	return nil
}

// ListStats returns every management stat row for the management status
// endpoint, ordered by group then name.
func (s *Store) ListStats(ctx context.Context) ([]Stat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT "group", name, type, title, description, count, total_time, value
		FROM   status
		ORDER  BY "group", name, type`)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	var stats []Stat
	for rows.Next() {
		var st Stat
		err := rows.Scan(
			&st.Group, &st.Name, &st.Type,
			&st.Title, &st.Description,
			&st.Count, &st.TotalTime, &st.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

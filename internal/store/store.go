// Package store is the PostgreSQL-backed persistence layer for alerts,
// heartbeats and management stats.
//
// Alert documents are keyed naturally by (environment, resource, event);
// a unique index upholds the at-most-one-document rule. The correlation
// paths (UpdateDuplicate, UpdateCorrelated, CreateAlert) are single atomic
// statements that match, mutate and return the winning document in one
// round-trip, so concurrent workers racing on the same key are serialised
// by the database: the loser sees ErrNoMatch and re-classifies against the
// updated document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alerta/internal/alert"
)

// ErrNoMatch is returned when no stored alert satisfies an operation's
// match clause. On the correlation paths it is a classification signal,
// not a failure: the caller falls through to the next path or retries.
var ErrNoMatch = errors.New("store: no matching alert")

// Store wraps a pgx connection pool. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pgxpool connection to connStr and pings the database.
func New(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// alertColumns is every alert column except history, in scanAlert order.
// The correlation paths return documents without history: the history list
// is write-mostly and is never published downstream.
const alertColumns = `id, environment, resource, event, correlated_events,
	severity, severity_code, previous_severity, status,
	"group", value, text, summary, origin, type, tags, service,
	threshold_info, more_info, graphs, timeout,
	create_time, receive_time, last_receive_time, expire_time,
	last_receive_id, duplicate_count, repeat`

// --- Correlation paths ---

// UpdateDuplicate folds a into the stored alert matching (environment,
// resource, event, severity) exactly: it advances lastReceiveTime,
// expireTime and lastReceiveId, refreshes the free-text fields, marks the
// alert as a repeat and increments duplicateCount. It returns the updated
// document, or ErrNoMatch when no stored alert matches at that severity.
func (s *Store) UpdateDuplicate(ctx context.Context, a *alert.Alert) (*alert.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE alerts
		SET    last_receive_time = $5,
		       expire_time       = $6,
		       last_receive_id   = $7,
		       text              = $8,
		       summary           = $9,
		       value             = $10,
		       tags              = $11,
		       origin            = $12,
		       repeat            = TRUE,
		       duplicate_count   = duplicate_count + 1
		WHERE  environment = $1 AND resource = $2 AND event = $3 AND severity = $4
		RETURNING `+alertColumns,
		textArray(a.Environment), a.Resource, a.Event, string(a.Severity),
		a.ReceiveTime.Time, nullableTime(a.ExpireTime), a.ID,
		a.Text, a.Summary, a.Value, textArray(a.Tags), a.Origin,
	)
	doc, err := scanAlert(row, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("update duplicate: %w", err)
	}
	return doc, nil
}

// UpdateCorrelated rewrites the stored alert matching (environment,
// resource) whose event equals the incoming event, lists it among its
// correlatedEvents, or is listed in the incoming alert's correlatedEvents.
// The incoming event name wins, the stored severity is demoted to
// previousSeverity in the same statement, counters reset, and an
// event-history entry is appended. Severity is not part of the match: a
// correlated event at an unchanged severity still folds into the stored
// document (the exact-identity case at the same severity never reaches
// here because the duplicate path runs first). The ctid subquery pins the
// update to one row when the incoming correlatedEvents name several
// stored events. It returns the updated document, or ErrNoMatch when
// nothing matches.
func (s *Store) UpdateCorrelated(ctx context.Context, a *alert.Alert) (*alert.Alert, error) {
	entry, err := json.Marshal([]alert.HistoryEntry{alert.EventHistory(a)})
	if err != nil {
		return nil, fmt.Errorf("marshal history entry: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE alerts
		SET    event             = $3,
		       severity          = $4,
		       severity_code     = $5,
		       previous_severity = severity,
		       create_time       = $6,
		       receive_time      = $7,
		       last_receive_time = $7,
		       expire_time       = $8,
		       last_receive_id   = $9,
		       text              = $10,
		       summary           = $11,
		       value             = $12,
		       tags              = $13,
		       origin            = $14,
		       threshold_info    = $15,
		       repeat            = FALSE,
		       duplicate_count   = 0,
		       history           = history || $16::jsonb
		WHERE  ctid = (
		       SELECT ctid FROM alerts
		       WHERE  environment = $1 AND resource = $2
		       AND    (event = $3 OR $3 = ANY(correlated_events) OR event = ANY($17))
		       LIMIT  1)
		RETURNING `+alertColumns,
		textArray(a.Environment), a.Resource, a.Event,
		string(a.Severity), a.SeverityCode,
		a.CreateTime.Time, a.ReceiveTime.Time, nullableTime(a.ExpireTime),
		a.ID, a.Text, a.Summary, a.Value, textArray(a.Tags),
		a.Origin, a.ThresholdInfo, entry, textArray(a.CorrelatedEvents),
	)
	doc, err := scanAlert(row, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("update correlated: %w", err)
	}
	return doc, nil
}

// CreateAlert inserts doc as a new alert document. A conflict on the
// (environment, resource, event) identity key returns ErrNoMatch: another
// worker inserted the document between classification and insert, and the
// caller must re-classify. On success the inserted document is returned.
func (s *Store) CreateAlert(ctx context.Context, doc *alert.Alert) (*alert.Alert, error) {
	history := doc.History
	if history == nil {
		history = []alert.HistoryEntry{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO alerts (`+alertColumns+`, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26,
		        $27, $28, $29::jsonb)
		ON CONFLICT (environment, resource, event) DO NOTHING
		RETURNING `+alertColumns,
		doc.ID, textArray(doc.Environment), doc.Resource, doc.Event,
		textArray(doc.CorrelatedEvents),
		string(doc.Severity), doc.SeverityCode, string(doc.PreviousSeverity),
		string(doc.Status),
		doc.Group, doc.Value, doc.Text, doc.Summary, doc.Origin, doc.Type,
		textArray(doc.Tags), textArray(doc.Service),
		doc.ThresholdInfo, doc.MoreInfo, textArray(doc.Graphs), doc.Timeout,
		doc.CreateTime.Time, doc.ReceiveTime.Time, doc.LastReceiveTime.Time,
		nullableTime(doc.ExpireTime),
		doc.LastReceiveID, doc.DuplicateCount, doc.Repeat,
		historyJSON,
	)
	inserted, err := scanAlert(row, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return inserted, nil
}

// SetStatus updates the status of the alert identified by id and appends a
// status-history entry in the same statement. It returns ErrNoMatch when
// the alert no longer exists.
func (s *Store) SetStatus(ctx context.Context, id string, status alert.Status, at alert.Time) error {
	entry, err := json.Marshal([]alert.HistoryEntry{alert.StatusHistory(status, at)})
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts
		SET    status  = $2,
		       history = history || $3::jsonb
		WHERE  id = $1`,
		id, string(status), entry,
	)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoMatch
	}
	return nil
}

// GetAlert fetches one alert document, history included, by id. It returns
// ErrNoMatch when the id is unknown.
func (s *Store) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`, history
		FROM   alerts
		WHERE  id = $1`, id)

	var history []byte
	a, err := scanAlert(row, &history)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	if err := json.Unmarshal(history, &a.History); err != nil {
		return nil, fmt.Errorf("get alert %s: decode history: %w", id, err)
	}
	return a, nil
}

// --- internal helpers ---

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing shared scan
// helpers across single-row and multi-row queries.
type scanner interface {
	Scan(dest ...any) error
}

// scanAlert reads one alert row projected as alertColumns. When history is
// non-nil the row must carry a trailing history column, scanned raw for
// the caller to decode.
func scanAlert(s scanner, history *[]byte) (*alert.Alert, error) {
	var (
		a           alert.Alert
		severity    string
		prevSev     string
		status      string
		createTime  time.Time
		receiveTime time.Time
		lastReceive time.Time
		expireTime  *time.Time
	)
	dest := []any{
		&a.ID, &a.Environment, &a.Resource, &a.Event, &a.CorrelatedEvents,
		&severity, &a.SeverityCode, &prevSev, &status,
		&a.Group, &a.Value, &a.Text, &a.Summary, &a.Origin, &a.Type,
		&a.Tags, &a.Service,
		&a.ThresholdInfo, &a.MoreInfo, &a.Graphs, &a.Timeout,
		&createTime, &receiveTime, &lastReceive, &expireTime,
		&a.LastReceiveID, &a.DuplicateCount, &a.Repeat,
	}
	if history != nil {
		dest = append(dest, history)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	a.Severity = alert.Severity(severity)
	a.PreviousSeverity = alert.Severity(prevSev)
	a.Status = alert.Status(status)
	a.CreateTime = alert.At(createTime)
	a.ReceiveTime = alert.At(receiveTime)
	a.LastReceiveTime = alert.At(lastReceive)
	if expireTime != nil {
		et := alert.At(*expireTime)
		a.ExpireTime = &et
	}
	return &a, nil
}

// textArray converts a nil slice to an empty one, which pgx stores as '{}'
// rather than SQL NULL.
func textArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// nullableTime unwraps an optional timestamp for pgx; nil stays SQL NULL.
func nullableTime(t *alert.Time) *time.Time {
	if t == nil {
		return nil
	}
	return &t.Time
}

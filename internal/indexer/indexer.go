// Package indexer consumes processed alerts from the logger queue and
// persists each one into the full-text search index.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alerta/internal/alert"
	"alerta/internal/broker"
)

const requestTimeout = 10 * time.Second

// Indexer posts index records to <base URL>/<alert type>. One Indexer
// serves the whole process; it is safe for concurrent use.
type Indexer struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New returns an Indexer posting to the search backend rooted at baseURL.
func New(baseURL string, logger *slog.Logger) *Indexer {
	return &Indexer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// record is the index document schema. The field names and the "not_used"
// and "none" literals are part of the search-backend contract and must not
// change.
type record struct {
	Message    string       `json:"@message"`
	Source     string       `json:"@source"`
	SourceHost string       `json:"@source_host"`
	SourcePath string       `json:"@source_path"`
	Tags       any          `json:"@tags"`
	Timestamp  alert.Time   `json:"@timestamp"`
	Type       string       `json:"@type"`
	Fields     *alert.Alert `json:"@fields"`
}

func newRecord(a *alert.Alert) record {
	// The schema treats empty tags as the literal string "none" rather
	// than an empty list.
	var tags any = "none"
	if len(a.Tags) > 0 {
		tags = a.Tags
	}
	return record{
		Message:    a.Summary,
		Source:     a.Resource,
		SourceHost: "not_used",
		SourcePath: a.Origin,
		Tags:       tags,
		Timestamp:  a.LastReceiveTime,
		Type:       a.Type,
		Fields:     a,
	}
}

// HandleMessage indexes one alert from the logger queue. Undecodable
// bodies are terminated; an unreachable or failing backend requeues the
// message so the durable consumer redelivers it.
func (ix *Indexer) HandleMessage(ctx context.Context, body []byte) error {
	var a alert.Alert
	if err := json.Unmarshal(body, &a); err != nil {
		ix.logger.Error("dropping undecodable alert", slog.Any("error", err))
		return fmt.Errorf("%w: decode alert: %v", broker.ErrBadMessage, err)
	}

	payload, err := json.Marshal(newRecord(&a))
	if err != nil {
		ix.logger.Error("encode index record failed",
			slog.String("id", a.ID), slog.Any("error", err))
		return fmt.Errorf("%w: encode record: %v", broker.ErrBadMessage, err)
	}

	url := ix.baseURL + "/" + a.Type
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("indexer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ix.client.Do(req)
	if err != nil {
		ix.logger.Error("index request failed",
			slog.String("url", url), slog.String("id", a.ID), slog.Any("error", err))
		return fmt.Errorf("indexer: post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ix.logger.Error("index request rejected",
			slog.String("url", url), slog.String("id", a.ID),
			slog.String("status", resp.Status))
		return fmt.Errorf("indexer: post %s: unexpected status %s", url, resp.Status)
	}

	// The backend responds with the generated document id.
	var result struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		ix.logger.Warn("decode index response failed",
			slog.String("url", url), slog.Any("error", err))
		return nil
	}
	ix.logger.Info("alert indexed",
		slog.String("id", a.ID),
		slog.String("location", url+"/"+result.ID))
	return nil
}

// Package alert defines the canonical alert document, the heartbeat
// record and the severity and status vocabularies shared by every
// component.
package alert

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TypeHeartbeat marks a message on the alert queue as a heartbeat rather
// than an alert.
const TypeHeartbeat = "heartbeat"

// Alert is the canonical alert document. The same shape travels on the
// inbound queue, lives in the store and is forwarded to the outbound
// destinations. Fields a sender may omit are pointers or carry omitempty.
type Alert struct {
	ID               string   `json:"id"`
	Resource         string   `json:"resource"`
	Event            string   `json:"event"`
	CorrelatedEvents []string `json:"correlatedEvents,omitempty"`
	Group            string   `json:"group"`
	Value            string   `json:"value"`
	Severity         Severity `json:"severity"`
	SeverityCode     int      `json:"severityCode"`
	PreviousSeverity Severity `json:"previousSeverity,omitempty"`
	Environment      []string `json:"environment"`
	Service          []string `json:"service"`
	Text             string   `json:"text"`
	Type             string   `json:"type"`
	Tags             []string `json:"tags"`
	Summary          string   `json:"summary"`
	Origin           string   `json:"origin"`
	ThresholdInfo    string   `json:"thresholdInfo"`
	MoreInfo         string   `json:"moreInfo,omitempty"`
	Graphs           []string `json:"graphs,omitempty"`

	// Timeout is the expiry window in seconds. Zero means the alert never
	// expires; nil means the sender left it to the server default.
	Timeout *int `json:"timeout,omitempty"`

	CreateTime      Time  `json:"createTime"`
	ReceiveTime     Time  `json:"receiveTime"`
	LastReceiveTime Time  `json:"lastReceiveTime"`
	ExpireTime      *Time `json:"expireTime,omitempty"`

	Status         Status `json:"status,omitempty"`
	LastReceiveID  string `json:"lastReceiveId,omitempty"`
	DuplicateCount int    `json:"duplicateCount"`
	Repeat         bool   `json:"repeat"`

	// History is the append-only audit trail. It is persisted with the
	// document but stripped from forwarded copies.
	History []HistoryEntry `json:"history,omitempty"`
}

// Validate checks the fields every alert must carry before it can be
// correlated.
func (a *Alert) Validate() error {
	var errs []error
	if a.Resource == "" {
		errs = append(errs, errors.New("resource is required"))
	}
	if a.Event == "" {
		errs = append(errs, errors.New("event is required"))
	}
	if a.Severity == "" {
		errs = append(errs, errors.New("severity is required"))
	}
	if len(a.Environment) == 0 {
		errs = append(errs, errors.New("environment is required"))
	}
	return errors.Join(errs...)
}

// HistoryEntry is one append-only audit record on an alert. Event entries
// capture the alert fields at receive time; status entries carry only the
// new status and when it was applied.
type HistoryEntry struct {
	ID           string   `json:"id,omitempty"`
	Event        string   `json:"event,omitempty"`
	Severity     Severity `json:"severity,omitempty"`
	SeverityCode int      `json:"severityCode,omitempty"`
	Value        string   `json:"value,omitempty"`
	Text         string   `json:"text,omitempty"`
	CreateTime   *Time    `json:"createTime,omitempty"`
	ReceiveTime  *Time    `json:"receiveTime,omitempty"`

	Status     Status `json:"status,omitempty"`
	UpdateTime *Time  `json:"updateTime,omitempty"`
}

// EventHistory captures a's event fields as a history entry.
func EventHistory(a *Alert) HistoryEntry {
	createTime, receiveTime := a.CreateTime, a.ReceiveTime
	return HistoryEntry{
		ID:           a.ID,
		Event:        a.Event,
		Severity:     a.Severity,
		SeverityCode: a.SeverityCode,
		Value:        a.Value,
		Text:         a.Text,
		CreateTime:   &createTime,
		ReceiveTime:  &receiveTime,
	}
}

// StatusHistory records a status change applied at t.
func StatusHistory(status Status, t Time) HistoryEntry {
	return HistoryEntry{Status: status, UpdateTime: &t}
}

// Heartbeat is a liveness record keyed by origin. Agents send them on the
// alert queue with type "heartbeat"; the server also upserts its own after
// every processed alert.
type Heartbeat struct {
	ID          string `json:"id,omitempty"`
	Origin      string `json:"origin"`
	Version     string `json:"version"`
	Type        string `json:"type,omitempty"`
	CreateTime  Time   `json:"createTime"`
	ReceiveTime Time   `json:"receiveTime"`
}

// PeekType reports the type field of a raw inbound message without
// decoding the rest of it.
func PeekType(body []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode message type: %w", err)
	}
	return envelope.Type, nil
}

package server

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"alerta/internal/alert"
	"alerta/internal/store"
)

// memStore is an in-memory Store with the same classification semantics as
// the PostgreSQL implementation: the correlation methods return
// store.ErrNoMatch when nothing matches, and every mutation is performed
// under one lock so the atomicity contract holds.
type memStore struct {
	mu         sync.Mutex
	alerts     map[string]*alert.Alert // keyed by identity
	heartbeats map[string]alert.Heartbeat
	timers     map[string]int
	gauges     map[string]int64
	counters   map[string]int

	// failCreates makes CreateAlert report a conflict n times, simulating
	// a lost insert race.
	failCreates int

	// hardErr, when set, is returned by every method.
	hardErr error
}

func newMemStore() *memStore {
	return &memStore{
		alerts:     map[string]*alert.Alert{},
		heartbeats: map[string]alert.Heartbeat{},
		timers:     map[string]int{},
		gauges:     map[string]int64{},
		counters:   map[string]int{},
	}
}

func identityKey(environment []string, resource, event string) string {
	return strings.Join(environment, ",") + "|" + resource + "|" + event
}

func (m *memStore) UpdateDuplicate(_ context.Context, a *alert.Alert) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hardErr != nil {
		return nil, m.hardErr
	}
	doc, ok := m.alerts[identityKey(a.Environment, a.Resource, a.Event)]
	if !ok || doc.Severity != a.Severity {
		return nil, store.ErrNoMatch
	}
	doc.LastReceiveTime = a.ReceiveTime
	doc.ExpireTime = a.ExpireTime
	doc.LastReceiveID = a.ID
	doc.Text = a.Text
	doc.Summary = a.Summary
	doc.Value = a.Value
	doc.Tags = slices.Clone(a.Tags)
	doc.Origin = a.Origin
	doc.Repeat = true
	doc.DuplicateCount++
	out := *doc
	return &out, nil
}

func (m *memStore) UpdateCorrelated(_ context.Context, a *alert.Alert) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hardErr != nil {
		return nil, m.hardErr
	}
	for key, doc := range m.alerts {
		if !slices.Equal(doc.Environment, a.Environment) || doc.Resource != a.Resource {
			continue
		}
		// Severity is not part of the correlated match; a same-severity
		// exact match never reaches here because UpdateDuplicate runs
		// first. First match wins, as the single-row UPDATE does.
		related := doc.Event == a.Event ||
			slices.Contains(doc.CorrelatedEvents, a.Event) ||
			slices.Contains(a.CorrelatedEvents, doc.Event)
		if !related {
			continue
		}
		doc.PreviousSeverity = doc.Severity
		doc.Event = a.Event
		doc.Severity = a.Severity
		doc.SeverityCode = a.SeverityCode
		doc.CreateTime = a.CreateTime
		doc.ReceiveTime = a.ReceiveTime
		doc.LastReceiveTime = a.ReceiveTime
		doc.ExpireTime = a.ExpireTime
		doc.LastReceiveID = a.ID
		doc.Text = a.Text
		doc.Summary = a.Summary
		doc.Value = a.Value
		doc.Tags = slices.Clone(a.Tags)
		doc.Origin = a.Origin
		doc.ThresholdInfo = a.ThresholdInfo
		doc.Repeat = false
		doc.DuplicateCount = 0
		doc.History = append(doc.History, alert.EventHistory(a))
		delete(m.alerts, key)
		m.alerts[identityKey(doc.Environment, doc.Resource, doc.Event)] = doc
		out := *doc
		return &out, nil
	}
	return nil, store.ErrNoMatch
}

func (m *memStore) CreateAlert(_ context.Context, doc *alert.Alert) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hardErr != nil {
		return nil, m.hardErr
	}
	if m.failCreates > 0 {
		m.failCreates--
		return nil, store.ErrNoMatch
	}
	key := identityKey(doc.Environment, doc.Resource, doc.Event)
	if _, exists := m.alerts[key]; exists {
		return nil, store.ErrNoMatch
	}
	stored := *doc
	m.alerts[key] = &stored
	out := stored
	return &out, nil
}

func (m *memStore) SetStatus(_ context.Context, id string, status alert.Status, at alert.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hardErr != nil {
		return m.hardErr
	}
	for _, doc := range m.alerts {
		if doc.ID == id {
			doc.Status = status
			doc.History = append(doc.History, alert.StatusHistory(status, at))
			return nil
		}
	}
	return store.ErrNoMatch
}

func (m *memStore) UpsertHeartbeat(_ context.Context, hb *alert.Heartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hardErr != nil {
		return m.hardErr
	}
	m.heartbeats[hb.Origin] = *hb
	return nil
}

func (m *memStore) UpsertTimer(_ context.Context, group, name, _, _ string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[group+"."+name]++
	return nil
}

func (m *memStore) UpsertGauge(_ context.Context, group, name, _, _ string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[group+"."+name] = value
	return nil
}

func (m *memStore) IncrCounter(_ context.Context, group, name, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[group+"."+name]++
	return nil
}

// get returns the stored document for an identity, or nil.
func (m *memStore) get(environment []string, resource, event string) *alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.alerts[identityKey(environment, resource, event)]
	if !ok {
		return nil
	}
	out := *doc
	return &out
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

// publication is one recorded Publish call.
type publication struct {
	Subject string
	Headers map[string]string
	Body    []byte
}

// fakeBus records publishes and lets tests toggle the connection state.
type fakeBus struct {
	mu           sync.Mutex
	disconnected bool
	publishErr   error
	published    []publication
}

func (b *fakeBus) Publish(subject string, headers map[string]string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publication{
		Subject: subject,
		Headers: headers,
		Body:    slices.Clone(body),
	})
	return nil
}

func (b *fakeBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.disconnected
}

func (b *fakeBus) publications() []publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

func (b *fakeBus) setConnected(up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = !up
}

var _ Store = (*memStore)(nil)
var _ Bus = (*fakeBus)(nil)

package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func TestReconnectDelay_Schedule(t *testing.T) {
	delay := reconnectDelay(5*time.Second, 120*time.Second)

	want := []time.Duration{
		5 * time.Second,   // attempt 1
		10 * time.Second,  // attempt 2
		20 * time.Second,  // attempt 3
		40 * time.Second,  // attempt 4
		80 * time.Second,  // attempt 5
		120 * time.Second, // attempt 6 (capped, 160s uncapped)
		120 * time.Second, // attempt 7
	}
	for i, w := range want {
		attempt := i + 1
		if got := delay(attempt); got != w {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestReconnectDelay_InitialAboveCap(t *testing.T) {
	delay := reconnectDelay(3*time.Minute, 2*time.Minute)
	if got := delay(1); got != 2*time.Minute {
		t.Errorf("delay(1) = %v, want cap %v", got, 2*time.Minute)
	}
}

func TestDialRetryPolicy_AttemptBudget(t *testing.T) {
	cfg := Config{
		MaxReconnects:  5,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
	}

	attempts := 0
	dial := func() error {
		attempts++
		return errors.New("refused")
	}
	if err := backoff.Retry(dial, dialRetryPolicy(context.Background(), cfg)); err == nil {
		t.Fatal("Retry succeeded, want exhausted budget")
	}
	if attempts != cfg.MaxReconnects {
		t.Errorf("dialed %d times, want %d", attempts, cfg.MaxReconnects)
	}
}

func TestDialRetryPolicy_SingleAttempt(t *testing.T) {
	cfg := Config{
		MaxReconnects:  1,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
	}

	attempts := 0
	dial := func() error {
		attempts++
		return errors.New("refused")
	}
	_ = backoff.Retry(dial, dialRetryPolicy(context.Background(), cfg))
	if attempts != 1 {
		t.Errorf("dialed %d times, want 1", attempts)
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.Name != "alerta" {
		t.Errorf("Name = %q, want %q", cfg.Name, "alerta")
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0] != "nats://127.0.0.1:4222" {
		t.Errorf("Servers = %v", cfg.Servers)
	}
	if cfg.AlertQueue != "alerts" || cfg.NotifyTopic != "notify" || cfg.LoggerQueue != "logger" {
		t.Errorf("destinations = %q/%q/%q", cfg.AlertQueue, cfg.NotifyTopic, cfg.LoggerQueue)
	}
	if cfg.MaxReconnects != 20 {
		t.Errorf("MaxReconnects = %d, want 20", cfg.MaxReconnects)
	}
	if cfg.InitialBackoff != 5*time.Second {
		t.Errorf("InitialBackoff = %v, want 5s", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 120*time.Second {
		t.Errorf("MaxBackoff = %v, want 120s", cfg.MaxBackoff)
	}
}

func TestConfig_ApplyDefaultsKeepsExplicit(t *testing.T) {
	cfg := Config{
		Name:           "alert-logger",
		Servers:        []string{"nats://broker1:4222", "nats://broker2:4222"},
		AlertQueue:     "alerts.prod",
		NotifyTopic:    "notify.prod",
		LoggerQueue:    "logger.prod",
		MaxReconnects:  5,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
	cfg.applyDefaults()

	if cfg.Name != "alert-logger" || len(cfg.Servers) != 2 {
		t.Errorf("cfg mutated: %+v", cfg)
	}
	if cfg.AlertQueue != "alerts.prod" || cfg.MaxReconnects != 5 {
		t.Errorf("cfg mutated: %+v", cfg)
	}
}

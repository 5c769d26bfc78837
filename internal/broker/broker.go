// Package broker implements the NATS client shared by alertad and
// alert-logger.
//
// # Destinations
//
// The "alerts" and "logger" queues are JetStream work-queue streams with
// durable pull consumers, so every message is delivered to exactly one
// consumer instance and unacknowledged messages are redelivered after a
// disconnect. The "notify" topic is plain core NATS fan-out: subscribers
// that are away miss messages, which is the intended contract for the
// notification side.
//
// # Reconnection
//
// The initial dial retries on an exponential schedule. Once connected the
// NATS client reconnects on its own, also with exponential backoff: 5s
// doubling to a 120s cap, up to 20 attempts. In-flight subscriptions
// survive reconnects; unacknowledged queue messages are redelivered and
// absorbed downstream by deduplication.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
)

const (
	defaultInitialBackoff = 5 * time.Second
	defaultMaxBackoff     = 120 * time.Second
	defaultMaxReconnects  = 20

	// fetchBatch is how many queued messages one Fetch pulls at most.
	fetchBatch = 10

	// flushTimeout bounds the wire commit of a core NATS publish.
	flushTimeout = 5 * time.Second

	// drainTimeout bounds how long Close waits for in-flight handlers.
	drainTimeout = 10 * time.Second
)

// ErrBadMessage marks a message as unprocessable. Handlers return it
// (wrapped or bare) to have the message terminated instead of redelivered;
// any other error requeues the message.
var ErrBadMessage = errors.New("broker: unprocessable message")

// Handler processes one inbound message body. A nil return acknowledges
// the message.
type Handler func(ctx context.Context, body []byte) error

// Config holds the broker connection settings.
type Config struct {
	// Name identifies this client on the broker, visible in monitoring.
	Name string

	// Servers is the failover list of broker URLs.
	Servers []string

	// AlertQueue, NotifyTopic and LoggerQueue are the three well-known
	// destinations. The queues are provisioned as JetStream work-queue
	// streams on connect.
	AlertQueue  string
	NotifyTopic string
	LoggerQueue string

	// MaxReconnects caps reconnection attempts. Defaults to 20 when zero.
	MaxReconnects int

	// InitialBackoff is the first reconnect delay. Defaults to 5 seconds
	// when zero.
	InitialBackoff time.Duration

	// MaxBackoff caps the reconnect delay. Defaults to 120 seconds when
	// zero.
	MaxBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "alerta"
	}
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	if c.AlertQueue == "" {
		c.AlertQueue = "alerts"
	}
	if c.NotifyTopic == "" {
		c.NotifyTopic = "notify"
	}
	if c.LoggerQueue == "" {
		c.LoggerQueue = "logger"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = defaultMaxReconnects
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
}

// Client is a connected NATS client. It is safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger

	nc *nats.Conn
	js nats.JetStreamContext

	// closed is closed by the NATS ClosedHandler once a Drain completes
	// or the connection is permanently lost.
	closed chan struct{}
}

// Connect dials the configured servers, retrying on the backoff schedule
// until ctx is cancelled or the attempt budget is spent, then provisions
// the JetStream work-queue streams for the alert and logger queues.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.applyDefaults()

	c := &Client{
		cfg:    cfg,
		logger: logger,
		closed: make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.CustomReconnectDelay(reconnectDelay(cfg.InitialBackoff, cfg.MaxBackoff)),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("broker: connection lost", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("broker: reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(c.closed)
		}),
	}

	url := strings.Join(cfg.Servers, ",")
	dial := func() error {
		nc, err := nats.Connect(url, opts...)
		if err != nil {
			logger.Warn("broker: connect failed", slog.String("servers", url), slog.Any("error", err))
			return err
		}
		c.nc = nc
		return nil
	}
	if err := backoff.Retry(dial, dialRetryPolicy(ctx, cfg)); err != nil {
		return nil, fmt.Errorf("broker: connect to %s: %w", url, err)
	}

	js, err := c.nc.JetStream()
	if err != nil {
		c.nc.Close()
		return nil, fmt.Errorf("broker: jetstream: %w", err)
	}
	c.js = js

	for _, stream := range []struct{ name, subject string }{
		{"ALERTS", cfg.AlertQueue},
		{"LOGGER", cfg.LoggerQueue},
	} {
		if err := ensureStream(js, stream.name, stream.subject); err != nil {
			c.nc.Close()
			return nil, fmt.Errorf("broker: %w", err)
		}
	}

	logger.Info("broker: connected",
		slog.String("url", c.nc.ConnectedUrl()),
		slog.String("name", cfg.Name))
	return c, nil
}

// Subscribe creates a durable pull subscription on subject and launches
// the consume loop in a background goroutine. The loop runs until ctx is
// cancelled; the durable consumer itself outlives the process, so pending
// and unacknowledged messages wait for the next instance.
func (c *Client) Subscribe(ctx context.Context, subject, durable string, handler Handler) error {
	sub, err := c.js.PullSubscribe(subject, durable)
	if err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", subject, err)
	}
	c.logger.Info("broker: subscribed",
		slog.String("subject", subject),
		slog.String("durable", durable))

	go c.consume(ctx, sub, subject, handler)
	return nil
}

func (c *Client) consume(ctx context.Context, sub *nats.Subscription, subject string, handler Handler) {
	for {
		if ctx.Err() != nil {
			c.logger.Info("broker: consumer stopping", slog.String("subject", subject))
			return
		}
		msgs, err := sub.Fetch(fetchBatch, nats.Context(ctx))
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("broker: consumer stopping", slog.String("subject", subject))
				return
			}
			// Fetch returns nats.ErrTimeout on an empty queue.
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			c.logger.Warn("broker: fetch failed",
				slog.String("subject", subject), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			c.handle(ctx, msg, handler)
		}
	}
}

// handle runs one message through handler and settles it: ack on success,
// terminate unprocessable messages so they are never redelivered, NAK
// transient failures for redelivery.
func (c *Client) handle(ctx context.Context, msg *nats.Msg, handler Handler) {
	err := handler(ctx, msg.Data)
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			c.logger.Warn("broker: ack failed", slog.Any("error", err))
		}
	case errors.Is(err, ErrBadMessage):
		c.logger.Warn("broker: terminating unprocessable message",
			slog.String("subject", msg.Subject), slog.Any("error", err))
		if err := msg.Term(); err != nil {
			c.logger.Warn("broker: term failed", slog.Any("error", err))
		}
	default:
		c.logger.Warn("broker: requeueing message",
			slog.String("subject", msg.Subject), slog.Any("error", err))
		if err := msg.Nak(); err != nil {
			c.logger.Warn("broker: nak failed", slog.Any("error", err))
		}
	}
}

// Publish sends body to subject with the given headers. Queue subjects go
// through JetStream and block until the server has committed the message;
// everything else is core NATS fan-out, flushed to the wire before
// returning but with no delivery confirmation.
func (c *Client) Publish(subject string, headers map[string]string, body []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = body
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if subject == c.cfg.AlertQueue || subject == c.cfg.LoggerQueue {
		if _, err := c.js.PublishMsg(msg); err != nil {
			return fmt.Errorf("broker: publish %s: %w", subject, err)
		}
		return nil
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("broker: publish %s: %w", subject, err)
	}
	if err := c.nc.FlushTimeout(flushTimeout); err != nil {
		return fmt.Errorf("broker: flush %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is currently up.
func (c *Client) IsConnected() bool {
	return c.nc.IsConnected()
}

// Close drains the connection: consumers stop fetching, in-flight handler
// acknowledgements are flushed, then the connection closes. Falls back to
// a hard close when draining fails or exceeds drainTimeout.
func (c *Client) Close() {
	if err := c.nc.Drain(); err != nil {
		c.logger.Warn("broker: drain failed", slog.Any("error", err))
		c.nc.Close()
		return
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout):
		c.logger.Warn("broker: drain timed out")
		c.nc.Close()
	}
}

// ensureStream creates a work-queue stream for subject when it does not
// already exist.
func ensureStream(js nats.JetStreamContext, name, subject string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	return nil
}

// dialRetryPolicy builds the schedule for the initial dial. MaxReconnects
// is a total attempt budget, so the retry count is one less than it: the
// first dial plus MaxReconnects-1 retries.
func dialRetryPolicy(ctx context.Context, cfg Config) backoff.BackOff {
	retries := uint64(0)
	if cfg.MaxReconnects > 1 {
		retries = uint64(cfg.MaxReconnects - 1)
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(cfg.InitialBackoff, cfg.MaxBackoff), retries),
		ctx,
	)
}

// reconnectDelay produces the reconnect schedule: initial on the first
// attempt, doubling per attempt, capped at max.
func reconnectDelay(initial, max time.Duration) func(int) time.Duration {
	return func(attempts int) time.Duration {
		d := initial
		for i := 1; i < attempts; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// newBackOff builds the exponential schedule used for the initial dial.
// Randomisation is disabled so the schedule matches reconnectDelay.
func newBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry budget is enforced by WithMaxRetries
	b.Reset()
	return b
}

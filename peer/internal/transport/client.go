package transport

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// Options configures a Client.
type Options struct {
	// URL is the relay's WebSocket endpoint.
	URL string

	// MaxMessageBytes bounds inbound frames. Snapshots are full images.
	MaxMessageBytes int64

	// Header is sent with every handshake, e.g. an Origin.
	Header http.Header

	Logger *slog.Logger
}

// Session runs over one connection and returns when it ends.
type Session func(ctx context.Context, conn *Conn) error

// dialFunc opens a connection. Abstracted so tests can count or fail dials.
type dialFunc func(ctx context.Context, opts Options) (*Conn, error)

// Client keeps a session connected to the relay.
type Client struct {
	opts   Options
	logger *slog.Logger
	dialFn dialFunc // injectable for tests

	initial time.Duration
	max     time.Duration
}

// New creates a Client for opts.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		logger:  logger,
		dialFn:  defaultDial,
		initial: backoffInitial,
		max:     backoffMax,
	}
}

func defaultDial(ctx context.Context, opts Options) (*Conn, error) {
	return Dial(ctx, opts.URL, opts.MaxMessageBytes, opts.Header)
}

// Run dials the relay and runs session on each connection, reconnecting
// with exponential backoff when the dial fails or the session ends.
// Run blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context, session Session) {
	bo := newBackoff(c.initial, c.max)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dialFn(ctx, c.opts)
		if err != nil {
			wait := bo.next()
			c.logger.Error("transport: dial failed, will retry",
				"url", c.opts.URL,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		c.logger.Info("transport: connected", "url", c.opts.URL)
		bo.reset()

		err = session(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		if err == nil {
			err = errors.New("session ended")
		}
		c.logger.Warn("transport: connection lost, will reconnect",
			"url", c.opts.URL,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, maxDelay time.Duration) *backoff {
	return &backoff{initial: initial, max: maxDelay, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}

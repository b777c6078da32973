package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Status is the connection indicator shown to the user.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

type HeartbeatConfig struct {
	Interval         time.Duration // default 10s
	FastInterval     time.Duration // while disconnected, default 2s
	Timeout          time.Duration // per beat, default 10s
	FailureThreshold int           // default 3
	Clock            clock.Clock
	Logger           *slog.Logger
	OnStatus         func(Status, int)
}

// Heartbeat polls /health independently of other requests and derives the
// connection indicator: any success is connected, failures below the
// threshold are reconnecting, at or above it disconnected.
type Heartbeat struct {
	c   *Client
	cfg HeartbeatConfig

	mu       sync.Mutex
	failures int
	status   Status
}

func NewHeartbeat(c *Client, cfg HeartbeatConfig) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return &Heartbeat{c: c, cfg: cfg, status: StatusUnknown}
}

// Beat sends one heartbeat and returns the resulting status.
func (h *Heartbeat) Beat(ctx context.Context) Status {
	_, err := h.c.Health(ctx, h.cfg.Timeout)

	h.mu.Lock()
	if err == nil {
		h.failures = 0
		h.status = StatusConnected
	} else {
		h.failures++
		if h.failures >= h.cfg.FailureThreshold {
			h.status = StatusDisconnected
		} else {
			h.status = StatusReconnecting
		}
	}
	st, n := h.status, h.failures
	h.mu.Unlock()

	if err != nil {
		h.cfg.Logger.Warn("Heartbeat failed", "failures", n, "threshold", h.cfg.FailureThreshold, "error", err)
	}
	if h.cfg.OnStatus != nil {
		h.cfg.OnStatus(st, n)
	}
	return st
}

func (h *Heartbeat) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// NextInterval is FastInterval while disconnected, Interval otherwise.
func (h *Heartbeat) NextInterval() time.Duration {
	if h.Status() == StatusDisconnected {
		return h.cfg.FastInterval
	}
	return h.cfg.Interval
}

// Run beats immediately and then on schedule until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	h.Beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.cfg.Clock.After(h.NextInterval()):
			h.Beat(ctx)
		}
	}
}

// Package reconnect runs bounded exponential-backoff reconnection chains
// against the storage pool.
//
// At most one chain runs at a time. A chain ends when a probe succeeds or
// after MaxAttempts failures; giving up is logged and the process keeps
// serving in a degraded state.
package reconnect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/clock"

	"github.com/loykin/braindump/internal/connstate"
	"github.com/loykin/braindump/internal/history"
	"github.com/loykin/braindump/internal/metrics"
)

// Defaults for a backoff chain: 1s, 2s, 4s ... capped at 60s, 10 attempts.
const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// Phase is the supervisor state.
type Phase int

const (
	Idle Phase = iota
	Backoff
	GivenUp
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Backoff:
		return "backoff"
	case GivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// Prober runs one reconnection probe and records its result in the shared state.
type Prober interface {
	Probe(ctx context.Context) bool
}

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
	Events      history.Emitter
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Events == nil {
		o.Events = history.Discard
	}
	return o
}

// newBackOff returns a deterministic doubling schedule: no jitter and no
// elapsed-time limit, the attempt cap is enforced by the supervisor.
func newBackOff(o Options) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     o.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         o.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Delays returns the delay before each attempt of a full chain.
func Delays(o Options) []time.Duration {
	o = o.withDefaults()
	b := newBackOff(o)
	out := make([]time.Duration, o.MaxAttempts)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

// Supervisor runs at most one reconnection chain at a time. Each chain
// probes on the schedule from Delays and stops on the first success or
// after MaxAttempts failures.
type Supervisor struct {
	prober Prober
	state  *connstate.State
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	phase   Phase
	attempt int
	reason  string
	bo      *backoff.ExponentialBackOff
	timer   clock.Timer
	stopped bool
}

func New(p Prober, state *connstate.State, opts Options) *Supervisor {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{prober: p, state: state, opts: opts, logger: opts.Logger, ctx: ctx, cancel: cancel}
}

// Trigger starts a backoff chain. It returns false without side effects while
// a chain is running, after Stop, or when the previous chain gave up and no
// probe has succeeded since.
func (s *Supervisor) Trigger(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.phase == Backoff {
		return false
	}
	if s.state.RetryCount() >= s.opts.MaxAttempts {
		return false
	}
	s.logger.Warn("Starting database reconnection", "reason", reason)
	s.phase = Backoff
	s.attempt = 0
	s.reason = reason
	s.bo = newBackOff(s.opts)
	s.scheduleLocked()
	return true
}

// OnPoolError adapts Trigger to the pool error callback.
func (s *Supervisor) OnPoolError(err error) {
	s.Trigger("pool error: " + err.Error())
}

func (s *Supervisor) scheduleLocked() {
	s.attempt++
	s.state.NextRetry()
	n := s.attempt
	d := s.bo.NextBackOff()
	s.logger.Info("Reconnection attempt scheduled", "attempt", n, "max", s.opts.MaxAttempts, "delay", d)
	s.emitLocked(history.EventReconnecting)
	s.timer = s.opts.Clock.AfterFunc(d, func() { s.run(n) })
}

func (s *Supervisor) run(n int) {
	ok := s.prober.Probe(s.ctx)
	metrics.IncReconnectAttempt(ok)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if ok {
		s.phase = Idle
		s.logger.Info("Database reconnected", "attempt", n)
		metrics.IncReconnectChain("recovered")
		s.emitLocked(history.EventRecovered)
		return
	}
	if n >= s.opts.MaxAttempts {
		s.phase = GivenUp
		s.logger.Error("Max reconnection attempts reached, continuing degraded", "attempts", n)
		metrics.IncReconnectChain("given_up")
		s.emitLocked(history.EventGivenUp)
		return
	}
	s.logger.Warn("Reconnection attempt failed", "attempt", n)
	s.scheduleLocked()
}

func (s *Supervisor) emitLocked(t history.EventType) {
	snap := s.state.Snapshot()
	s.opts.Events.Emit(history.Event{
		Type:                t,
		OccurredAt:          s.opts.Clock.Now(),
		Reason:              s.reason,
		Attempt:             s.attempt,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		RetryCount:          snap.RetryCount,
	})
}

func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Stop cancels a pending attempt. Further triggers are ignored.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
}

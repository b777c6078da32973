// Package prober periodically exercises the storage pool to detect silent
// connection drops and keep idle connections warm.
package prober

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/loykin/braindump/internal/connstate"
	"github.com/loykin/braindump/internal/metrics"
)

const (
	DefaultInterval         = 10 * time.Second
	DefaultFailureThreshold = 3
)

// Pool is the subset of pool.Manager the prober needs.
type Pool interface {
	ProbeFrom(ctx context.Context, source string) bool
	Ping(ctx context.Context) error
}

// Trigger starts reconnection. *reconnect.Supervisor satisfies it.
type Trigger interface {
	Trigger(reason string) bool
}

type Options struct {
	Interval         time.Duration
	FailureThreshold int
	Clock            clock.Clock
	Logger           *slog.Logger
}

type Prober struct {
	pool      Pool
	state     *connstate.State
	trigger   Trigger
	interval  time.Duration
	threshold int
	clock     clock.Clock
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p Pool, state *connstate.State, t Trigger, opts Options) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Prober{
		pool:      p,
		state:     state,
		trigger:   t,
		interval:  opts.Interval,
		threshold: opts.FailureThreshold,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
}

// Start launches the ticking goroutine. Calling Start on a running prober is a no-op.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
			p.Tick(ctx)
		}
	}
}

// Tick runs one probe cycle. Reaching the failure threshold marks the pool
// disconnected and triggers reconnection; the supervisor ignores repeats
// while a chain is active.
func (p *Prober) Tick(ctx context.Context) {
	if !p.state.Connected() {
		p.pool.ProbeFrom(ctx, "prober")
	}
	if err := p.pool.Ping(ctx); err != nil {
		n := p.state.IncFailures()
		metrics.SetConsecutiveFailures(n)
		p.logger.Error("Keep-alive database ping failed", "failures", n, "threshold", p.threshold, "error", err)
		if n >= p.threshold {
			p.state.MarkDisconnected()
			metrics.SetConnected(false)
			p.logger.Error("Multiple keep-alive failures, attempting reconnection")
			p.trigger.Trigger("keep-alive failures")
		}
		return
	}
	p.state.ResetFailures()
	metrics.SetConsecutiveFailures(0)
	p.logger.Debug("Keep-alive database ping successful")
}

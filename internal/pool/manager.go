// Package pool owns the storage connection pool and its liveness probe.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/braindump/internal/connstate"
	"github.com/loykin/braindump/internal/metrics"
	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

// DefaultProbeTimeout bounds a single probe, including connection acquisition.
const DefaultProbeTimeout = 5 * time.Second

// Options configure a Manager.
type Options struct {
	ProbeTimeout time.Duration
	Logger       *slog.Logger
	// OnError receives connection-class failures seen on real queries.
	// It plays the role of an asynchronous pool error event.
	OnError func(err error)
}

// Manager wraps a store.Store with probing and error reporting.
type Manager struct {
	store   store.Store
	state   *connstate.State
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	onError func(error)
}

func New(s store.Store, state *connstate.State, opts Options) *Manager {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{store: s, state: state, timeout: opts.ProbeTimeout, logger: opts.Logger, onError: opts.OnError}
}

// SetOnError replaces the pool error handler. The supervisor is usually
// built after the manager, so it is attached here.
func (m *Manager) SetOnError(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

// Probe runs the liveness query and records the result in the shared state.
// Counters are left to the caller.
func (m *Manager) Probe(ctx context.Context) bool {
	return m.ProbeFrom(ctx, "probe")
}

// ProbeFrom is Probe with a metrics label naming the caller.
func (m *Manager) ProbeFrom(ctx context.Context, source string) bool {
	err := m.Ping(ctx)
	ok := err == nil
	m.state.MarkProbe(ok)
	metrics.RecordProbe(source, ok)
	if !ok {
		m.logger.Warn("Database probe failed", "source", source, "error", err)
	}
	return ok
}

// Ping runs the liveness query without touching the shared state.
func (m *Manager) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.store.Ping(ctx)
}

func (m *Manager) Stats() store.PoolStats {
	st := m.store.Stats()
	metrics.SetPoolStats(st)
	return st
}

func (m *Manager) ListPosts(ctx context.Context, q post.Query) ([]post.Post, error) {
	posts, err := m.store.ListPosts(ctx, q)
	m.ReportError(err)
	return posts, err
}

func (m *Manager) CreatePost(ctx context.Context, d post.Draft) (post.Post, error) {
	p, err := m.store.CreatePost(ctx, d)
	m.ReportError(err)
	return p, err
}

// ReportError marks the pool disconnected and emits the pool error event
// when err is a connectivity failure. Other errors are ignored.
func (m *Manager) ReportError(err error) {
	if err == nil || !store.IsUnavailable(err) {
		return
	}
	m.state.MarkDisconnected()
	metrics.SetConnected(false)
	m.logger.Error("Database pool error", "error", err)
	m.mu.RLock()
	fn := m.onError
	m.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Store returns the underlying backend.
func (m *Manager) Store() store.Store { return m.store }

func (m *Manager) Close() error { return m.store.Close() }

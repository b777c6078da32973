// Package app assembles the API server: storage, connection supervision,
// health reporting and the HTTP router, and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/braindump/internal/config"
	"github.com/loykin/braindump/internal/connstate"
	"github.com/loykin/braindump/internal/guard"
	"github.com/loykin/braindump/internal/health"
	"github.com/loykin/braindump/internal/history"
	historyfactory "github.com/loykin/braindump/internal/history/factory"
	"github.com/loykin/braindump/internal/logger"
	"github.com/loykin/braindump/internal/metrics"
	"github.com/loykin/braindump/internal/pool"
	"github.com/loykin/braindump/internal/prober"
	"github.com/loykin/braindump/internal/reconnect"
	"github.com/loykin/braindump/internal/server"
	"github.com/loykin/braindump/internal/store"
	"github.com/loykin/braindump/internal/store/factory"
	tlsx "github.com/loykin/braindump/internal/tls"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

// Options override parts of the assembly. Zero values build everything from
// the configuration.
type Options struct {
	Logger     *slog.Logger
	Store      store.Store
	Clock      clock.Clock
	Memory     metrics.MemorySampler
	Registerer prometheus.Registerer
	// HistorySinks replaces the sinks built from history.sinks and enables
	// the recorder regardless of history.enabled.
	HistorySinks []history.Sink
}

type App struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer

	State      *connstate.State
	Pool       *pool.Manager
	Supervisor *reconnect.Supervisor
	Health     *health.Reporter
	Prober     *prober.Prober
	History    *history.Recorder // nil when history export is off

	handler http.Handler
	server  *http.Server

	ready         chan struct{}
	addrMu        sync.RWMutex
	addr          string
	closeOne      sync.Once
	schemaPending atomic.Bool
}

// New builds the application without touching the network beyond opening
// the store. The store connection is lazy for every backend, so an
// unreachable database does not fail construction.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg, ready: make(chan struct{})}

	if opts.Logger != nil {
		a.logger = opts.Logger
		a.closer = io.NopCloser(nil)
	} else {
		l, c, err := logger.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		a.logger, a.closer = l, c
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if err := metrics.Register(reg); err != nil {
			a.logger.Warn("Failed to register metrics", "error", err)
		} else {
			metricsPath = cfg.Metrics.Path
		}
	}

	st := opts.Store
	if st == nil {
		var err error
		st, err = factory.New(ctx, cfg.StoreConfig(), cfg.Database.EnsureSchema)
		if err != nil {
			if st == nil {
				_ = a.closer.Close()
				return nil, fmt.Errorf("open store: %w", err)
			}
			a.logger.Warn("Database unreachable, schema will be ensured on first connection", "error", err)
			a.schemaPending.Store(true)
		}
	}

	events := history.Discard
	sinks := opts.HistorySinks
	if len(sinks) == 0 && cfg.History.Enabled {
		var err error
		sinks, err = historyfactory.NewSinks(ctx, cfg.History.Sinks)
		if err != nil {
			_ = a.closer.Close()
			_ = st.Close()
			return nil, fmt.Errorf("history sinks: %w", err)
		}
	}
	if len(sinks) > 0 {
		a.History = history.NewRecorder(sinks, history.RecorderOptions{
			Buffer:   cfg.History.Buffer,
			Instance: cfg.History.Instance,
			Logger:   a.logger,
		})
		events = a.History
	}

	a.State = connstate.New()
	a.State.SetOnChange(func(now bool, before connstate.Snapshot) {
		t := history.EventDisconnected
		if now {
			t = history.EventConnected
			if a.schemaPending.CompareAndSwap(true, false) {
				go a.ensureSchema(st)
			}
		}
		events.Emit(history.Event{
			Type:                t,
			ConsecutiveFailures: before.ConsecutiveFailures,
			RetryCount:          before.RetryCount,
		})
	})
	a.Pool = pool.New(st, a.State, pool.Options{ProbeTimeout: cfg.Database.ProbeTimeout, Logger: a.logger})
	a.Supervisor = reconnect.New(a.Pool, a.State, reconnect.Options{
		MaxAttempts: cfg.Resilience.MaxAttempts,
		BaseDelay:   cfg.Resilience.BaseDelay,
		MaxDelay:    cfg.Resilience.MaxDelay,
		Clock:       opts.Clock,
		Logger:      a.logger,
		Events:      events,
	})
	a.Pool.SetOnError(a.Supervisor.OnPoolError)

	g := guard.New(a.Pool, a.State)
	a.Health = health.New(a.Pool, health.Options{
		MemoryThresholdMB: cfg.Health.MemoryThresholdMB,
		Memory:            opts.Memory,
		Clock:             opts.Clock,
		Logger:            a.logger,
	})
	a.Prober = prober.New(a.Pool, a.State, a.Supervisor, prober.Options{
		Interval:         cfg.Resilience.ProbeInterval,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Clock:            opts.Clock,
		Logger:           a.logger,
	})

	r := server.NewRouter(a.Pool, g, a.Health, server.Options{
		BasePath:    cfg.Server.BasePath,
		MetricsPath: metricsPath,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      a.logger,
	})
	a.handler = r.Handler()
	a.server = server.NewServer(cfg.Server.Addr(), a.handler)
	tc, err := tlsx.Setup(cfg.Server.TLS)
	if err != nil {
		if a.History != nil {
			_ = a.History.Close()
		}
		_ = a.closer.Close()
		_ = st.Close()
		return nil, err
	}
	a.server.TLSConfig = tc
	return a, nil
}

// ensureSchema retries the schema creation skipped at startup. A failure
// re-arms it for the next connection.
func (a *App) ensureSchema(st store.Store) {
	se, ok := st.(store.SchemaEnsurer)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Database.ProbeTimeout)
	defer cancel()
	if err := se.EnsureSchema(ctx); err != nil {
		a.logger.Warn("Deferred schema creation failed", "error", err)
		a.schemaPending.Store(true)
		return
	}
	a.logger.Info("Database schema ensured")
}

// Handler returns the HTTP handler, for embedding or tests.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Logger() *slog.Logger { return a.logger }

// Ready is closed once the listener is bound.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr is the bound listen address, empty before Ready.
func (a *App) Addr() string {
	a.addrMu.RLock()
	defer a.addrMu.RUnlock()
	return a.addr
}

// Run binds the listener, probes storage once, starts the background prober
// and serves until ctx is cancelled. A failed first probe starts a
// reconnection chain instead of aborting startup.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.server.Addr, err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr().String()
	a.addrMu.Unlock()
	close(a.ready)
	a.logger.Info("Server running", "addr", a.Addr(), "base_path", a.cfg.Server.BasePath,
		"store", a.cfg.Database.Type, "tls", a.server.TLSConfig != nil)

	if a.Pool.ProbeFrom(ctx, "startup") {
		a.logger.Info("Connected to database")
	} else {
		a.logger.Warn("Initial database connection failed")
		a.Supervisor.Trigger("initial connection failed")
	}
	a.Prober.Start(ctx)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if a.server.TLSConfig != nil {
			err = a.server.ServeTLS(ln, "", "")
		} else {
			err = a.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		a.logger.Info("Shutting down gracefully")
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(sctx)
	})
	err = eg.Wait()

	a.Prober.Stop()
	a.Supervisor.Stop()
	return err
}

// Close releases the store, flushes connection history and closes the log
// file. It is safe to call twice.
func (a *App) Close() error {
	var err error
	a.closeOne.Do(func() {
		a.Prober.Stop()
		a.Supervisor.Stop()
		var herr error
		if a.History != nil {
			herr = a.History.Close()
		}
		err = errors.Join(a.Pool.Close(), herr, a.closer.Close())
	})
	return err
}

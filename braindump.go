package braindump

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/braindump/internal/app"
	cfg "github.com/loykin/braindump/internal/config"
	"github.com/loykin/braindump/internal/metrics"
	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
	"github.com/loykin/braindump/internal/store/memory"
	"github.com/loykin/braindump/pkg/client"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Post = post.Post

type Draft = post.Draft

type Query = post.Query

type Config = cfg.Config

type Store = store.Store

type PoolStats = store.PoolStats

// Server is a thin facade over internal/app.App.
type Server struct{ inner *app.App }

// Options tune an embedded server. A nil Store opens the configured backend.
type Options = app.Options

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

func LoadEnvFiles(paths ...string) error { return cfg.LoadEnvFiles(paths...) }

// NewServer assembles the API server without starting it.
func NewServer(ctx context.Context, c *Config, opts Options) (*Server, error) {
	a, err := app.New(ctx, c, opts)
	if err != nil {
		return nil, err
	}
	return &Server{inner: a}, nil
}

func (s *Server) Run(ctx context.Context) error { return s.inner.Run(ctx) }
func (s *Server) Ready() <-chan struct{}        { return s.inner.Ready() }
func (s *Server) Addr() string                  { return s.inner.Addr() }
func (s *Server) Connected() bool               { return s.inner.State.Connected() }
func (s *Server) Close() error                  { return s.inner.Close() }

// NewMemoryStore returns an in-process store, handy for demos and tests.
func NewMemoryStore() *memory.Store { return memory.New() }

// Client facade

type Client = client.Client

type ClientConfig = client.Config

func NewClient(c ClientConfig) *Client { return client.New(c) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

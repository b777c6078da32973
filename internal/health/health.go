// Package health builds the /health payload.
package health

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/juju/clock"

	"github.com/loykin/braindump/internal/metrics"
	"github.com/loykin/braindump/internal/store"
)

// DefaultMemoryThresholdMB is the heap size above which memory reports a warning.
const DefaultMemoryThresholdMB = 500

// Overall status values.
const (
	StatusOK       = "OK"
	StatusDegraded = "DEGRADED"
)

// Check values.
const (
	Healthy   = "healthy"
	Unhealthy = "unhealthy"
	Warning   = "warning"
)

// Checks is the per-subsystem part of the payload.
type Checks struct {
	Database    string          `json:"database"`
	Memory      string          `json:"memory"`
	Connections store.PoolStats `json:"connections"`
}

// Status is recomputed on every request and never stored.
type Status struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Uptime        float64   `json:"uptime"`
	Checks        Checks    `json:"checks"`
	MemoryUsageMB *int64    `json:"memoryUsageMB,omitempty"`
}

// HTTPStatus maps OK to 200 and anything else to 503.
func (s Status) HTTPStatus() int {
	if s.Status == StatusOK {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// Pool is the subset of pool.Manager the reporter needs.
type Pool interface {
	ProbeFrom(ctx context.Context, source string) bool
	Stats() store.PoolStats
}

// Options configures a Reporter. Zero fields take defaults in New.
type Options struct {
	MemoryThresholdMB float64
	Memory            metrics.MemorySampler
	Clock             clock.Clock
	Logger            *slog.Logger
}

// Reporter builds the health payload from a fresh pool check and memory sample.
type Reporter struct {
	pool      Pool
	threshold float64
	memory    metrics.MemorySampler
	clock     clock.Clock
	started   time.Time
	logger    *slog.Logger
}

func New(p Pool, opts Options) *Reporter {
	if opts.MemoryThresholdMB <= 0 {
		opts.MemoryThresholdMB = DefaultMemoryThresholdMB
	}
	if opts.Memory == nil {
		opts.Memory = metrics.NewProcessMemory()
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reporter{
		pool:      p,
		threshold: opts.MemoryThresholdMB,
		memory:    opts.Memory,
		clock:     opts.Clock,
		started:   opts.Clock.Now(),
		logger:    opts.Logger,
	}
}

// Check probes storage once and samples memory. A memory warning is
// reported but does not change the overall status.
func (r *Reporter) Check(ctx context.Context) Status {
	now := r.clock.Now()
	st := Status{
		Status:    StatusOK,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(r.started).Seconds(),
	}

	if r.pool.ProbeFrom(ctx, "health") {
		st.Checks.Database = Healthy
	} else {
		st.Checks.Database = Unhealthy
		st.Status = StatusDegraded
	}

	sample := r.memory.Sample(ctx)
	metrics.SetProcessMemory(sample)
	heap := sample.HeapMB
	if heap > r.threshold {
		st.Checks.Memory = Warning
		mb := int64(math.Round(heap))
		st.MemoryUsageMB = &mb
		r.logger.Warn("Memory usage above threshold", "heap_mb", mb, "threshold_mb", r.threshold)
	} else {
		st.Checks.Memory = Healthy
	}

	st.Checks.Connections = r.pool.Stats()
	return st
}

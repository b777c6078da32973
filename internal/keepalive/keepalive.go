// Package keepalive pings the health endpoint on a fixed schedule so an idle
// deployment is never put to sleep and its status shows up in the logs.
package keepalive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/braindump/pkg/client"
)

const DefaultInterval = 60 * time.Second

type Config struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Daemon wraps a cron scheduler with a single "@every" entry.
type Daemon struct {
	client   *client.Client
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(cfg Config) (*Daemon, error) {
	if cfg.URL == "" {
		return nil, errors.New("keepalive: health URL is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := client.New(client.Config{
		BaseURL:     cfg.URL,
		HealthURL:   cfg.URL,
		Timeout:     cfg.Timeout,
		MaxAttempts: 1,
		Logger:      cfg.Logger,
	})
	return &Daemon{client: c, interval: cfg.Interval, timeout: cfg.Timeout, logger: cfg.Logger}, nil
}

// Start pings once right away and then every interval.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scheduler != nil {
		return errors.New("keepalive: already running")
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.scheduler = cron.New()
	if _, err := d.scheduler.AddFunc(fmt.Sprintf("@every %s", d.interval), d.tick); err != nil {
		d.scheduler = nil
		d.cancel()
		return fmt.Errorf("keepalive: schedule: %w", err)
	}
	d.logger.Info("Keep-alive daemon started", "url", d.client.HealthURL(), "interval", d.interval)
	go d.tick()
	d.scheduler.Start()
	return nil
}

// Stop halts the schedule and waits for a running ping to return.
func (d *Daemon) Stop() {
	d.mu.Lock()
	s := d.scheduler
	d.scheduler = nil
	cancel := d.cancel
	d.mu.Unlock()
	if s == nil {
		return
	}
	cancel()
	<-s.Stop().Done()
	d.logger.Info("Keep-alive daemon shutting down")
}

func (d *Daemon) tick() {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	_ = d.Ping(ctx)
}

// Ping performs one health request and logs the outcome. A reply that is
// not a health document still counts as alive.
func (d *Daemon) Ping(ctx context.Context) error {
	st, err := d.client.Health(ctx, d.timeout)
	if st != nil {
		d.logger.Info(fmt.Sprintf("Server alive - DB: %s", st.Checks.Database), "status", st.Status)
		return nil
	}
	var se *client.StatusError
	if errors.As(err, &se) {
		d.logger.Info(fmt.Sprintf("Server alive - Response: %d", se.Code))
		return nil
	}
	if errors.Is(err, client.ErrHealthBody) {
		d.logger.Info(fmt.Sprintf("Server alive - Response: %d", http.StatusOK))
		return nil
	}
	d.logger.Error("Ping failed", "error", err)
	return err
}

package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/braindump/internal/metrics"
)

const (
	DefaultBuffer      = 256
	DefaultSendTimeout = 5 * time.Second
)

type RecorderOptions struct {
	Buffer      int
	SendTimeout time.Duration
	Instance    string // defaults to hostname plus a random suffix
	Logger      *slog.Logger
}

// Recorder fans events out to sinks from a single goroutine. Emit never
// blocks: when the buffer is full the event is dropped and counted.
type Recorder struct {
	sinks    []Sink
	ch       chan Event
	timeout  time.Duration
	instance string
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRecorder(sinks []Sink, opts RecorderOptions) *Recorder {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Instance == "" {
		host, _ := os.Hostname()
		opts.Instance = host + "-" + uuid.NewString()[:8]
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Recorder{
		sinks:    sinks,
		ch:       make(chan Event, opts.Buffer),
		timeout:  opts.SendTimeout,
		instance: opts.Instance,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) Instance() string { return r.instance }

func (r *Recorder) Emit(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	if e.Instance == "" {
		e.Instance = r.instance
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.IncHistoryEvent("dropped")
		return
	}
	select {
	case r.ch <- e:
	default:
		metrics.IncHistoryEvent("dropped")
		r.logger.Warn("History buffer full, dropping event", "type", e.Type)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			err := s.Send(ctx, e)
			cancel()
			if err != nil {
				metrics.IncHistoryEvent("failed")
				r.logger.Warn("History sink failed", "type", e.Type, "error", err)
				continue
			}
			metrics.IncHistoryEvent("sent")
		}
	}
}

// Close drains buffered events, then closes sinks that implement io.Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

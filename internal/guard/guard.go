// Package guard gates storage operations on known connectivity.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/braindump/internal/connstate"
	"github.com/loykin/braindump/internal/store"
)

var (
	// ErrUnavailable means storage is known to be unreachable. Callers map it to 503.
	ErrUnavailable = errors.New("database unavailable")
	// ErrInternal wraps any other query failure. Callers map it to 500.
	ErrInternal = errors.New("internal error")
)

// Prober is the subset of pool.Manager the guard needs.
type Prober interface {
	ProbeFrom(ctx context.Context, source string) bool
}

// Guard wraps storage calls so that a request against a known-down pool
// fails fast with ErrUnavailable instead of waiting on a dial.
type Guard struct {
	prober Prober
	state  *connstate.State
}

func New(p Prober, state *connstate.State) *Guard {
	return &Guard{prober: p, state: state}
}

// Do runs fn when storage is believed reachable. A disconnected pool is
// re-probed first and fn is skipped if that probe fails. Guard probes never
// start reconnection and never touch the background failure streak.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.state.Connected() && !g.prober.ProbeFrom(ctx, "guard") {
		return ErrUnavailable
	}
	if err := fn(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	if store.IsUnavailable(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

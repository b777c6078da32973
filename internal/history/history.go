// Package history exports connection lifecycle events (connectivity changes
// and reconnection chains) to external analytics systems.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of connection event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventReconnecting EventType = "reconnecting"
	EventRecovered    EventType = "recovered"
	EventGivenUp      EventType = "given_up"
)

// Event is one connection lifecycle event.
type Event struct {
	Type                EventType `json:"type"`
	OccurredAt          time.Time `json:"occurred_at"`
	Instance            string    `json:"instance"`
	Reason              string    `json:"reason,omitempty"`
	Attempt             int       `json:"attempt"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	RetryCount          int       `json:"retry_count"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(e Event)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

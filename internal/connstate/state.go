// Package connstate holds the shared view of storage connectivity.
//
// One State is owned by the application and handed to the pool manager,
// request guard, health reporter, prober and reconnection supervisor.
// Connected is true only if the most recent probe succeeded; a successful
// probe also resets both counters.
package connstate

import "sync"

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Connected           bool `json:"connected"`
	ConsecutiveFailures int  `json:"consecutive_failures"`
	RetryCount          int  `json:"retry_count"`
}

// State is safe for concurrent use. The zero value reads as disconnected.
type State struct {
	mu       sync.RWMutex
	snap     Snapshot
	onChange func(Snapshot)
}

// New returns a disconnected state with zero counters.
func New() *State { return &State{} }

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Connected
}

func (s *State) RetryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.RetryCount
}

func (s *State) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.ConsecutiveFailures
}

// SetOnChange registers fn to run whenever Connected flips. fn receives the
// snapshot taken before the flip was applied, so counters still show the
// streak that led to it. It runs outside the lock.
func (s *State) SetOnChange(fn func(now bool, before Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		s.onChange = nil
		return
	}
	s.onChange = func(before Snapshot) { fn(!before.Connected, before) }
}

// MarkProbe records a probe result. Failure only clears Connected; the
// counters belong to whoever ran the probe.
func (s *State) MarkProbe(ok bool) {
	s.mu.Lock()
	before := s.snap
	if ok {
		s.snap = Snapshot{Connected: true}
	} else {
		s.snap.Connected = false
	}
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil && before.Connected != ok {
		cb(before)
	}
}

// IncFailures increments the background failure streak and returns it.
func (s *State) IncFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ConsecutiveFailures++
	return s.snap.ConsecutiveFailures
}

func (s *State) ResetFailures() {
	s.mu.Lock()
	s.snap.ConsecutiveFailures = 0
	s.mu.Unlock()
}

func (s *State) MarkDisconnected() {
	s.MarkProbe(false)
}

// NextRetry increments the reconnection attempt counter and returns it.
func (s *State) NextRetry() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RetryCount++
	return s.snap.RetryCount
}

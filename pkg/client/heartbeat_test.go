package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatTransitions(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			_, _ = w.Write([]byte(`{"status":"OK"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var seen []Status
	hb := NewHeartbeat(New(Config{BaseURL: srv.URL + "/api"}), HeartbeatConfig{
		OnStatus: func(s Status, _ int) { seen = append(seen, s) },
	})
	ctx := context.Background()

	assert.Equal(t, StatusUnknown, hb.Status())
	assert.Equal(t, StatusReconnecting, hb.Beat(ctx))
	assert.Equal(t, StatusReconnecting, hb.Beat(ctx))
	assert.Equal(t, 10*time.Second, hb.NextInterval())
	assert.Equal(t, StatusDisconnected, hb.Beat(ctx))
	assert.Equal(t, 2*time.Second, hb.NextInterval())

	healthy.Store(true)
	assert.Equal(t, StatusConnected, hb.Beat(ctx))
	assert.Equal(t, 10*time.Second, hb.NextInterval())

	// a single success resets the counter
	healthy.Store(false)
	assert.Equal(t, StatusReconnecting, hb.Beat(ctx))
	assert.Equal(t, []Status{StatusReconnecting, StatusReconnecting, StatusDisconnected, StatusConnected, StatusReconnecting}, seen)
}

func TestHeartbeatRunSchedule(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clk := testclock.NewClock(time.Now())
	hb := NewHeartbeat(New(Config{BaseURL: srv.URL + "/api"}), HeartbeatConfig{Clock: clk})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hb.Run(ctx) }()

	// immediate beat, then two at the normal interval
	require.NoError(t, clk.WaitAdvance(10*time.Second, 2*time.Second, 1))
	require.NoError(t, clk.WaitAdvance(10*time.Second, 2*time.Second, 1))
	require.Eventually(t, func() bool { return hb.Status() == StatusDisconnected }, 2*time.Second, time.Millisecond)

	// disconnected: the next beat comes after the fast interval
	require.NoError(t, clk.WaitAdvance(2*time.Second, 2*time.Second, 1))
	require.Eventually(t, func() bool { return calls.Load() == 4 }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop")
	}
}

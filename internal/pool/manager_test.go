package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/braindump/internal/connstate"
	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
	"github.com/loykin/braindump/internal/store/memory"
)

func TestProbeUpdatesState(t *testing.T) {
	st := connstate.New()
	mem := memory.New()
	m := New(mem, st, Options{})

	st.IncFailures()
	st.NextRetry()
	require.True(t, m.Probe(context.Background()))
	assert.Equal(t, connstate.Snapshot{Connected: true}, st.Snapshot())

	mem.SetAvailable(false)
	st.IncFailures()
	require.False(t, m.Probe(context.Background()))
	snap := st.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
}

func TestPingLeavesStateAlone(t *testing.T) {
	st := connstate.New()
	mem := memory.New()
	m := New(mem, st, Options{})
	require.NoError(t, m.Ping(context.Background()))
	assert.False(t, st.Connected())
}

type slowStore struct{ memory.Store }

func (s *slowStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return store.Unavailable(ctx.Err())
}

func TestProbeIsBounded(t *testing.T) {
	st := connstate.New()
	m := New(&slowStore{}, st, Options{ProbeTimeout: 20 * time.Millisecond})
	start := time.Now()
	assert.False(t, m.Probe(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestReportErrorFiresOnConnectivityFailure(t *testing.T) {
	st := connstate.New()
	st.MarkProbe(true)
	mem := memory.New()
	var got []error
	m := New(mem, st, Options{OnError: func(err error) { got = append(got, err) }})

	mem.FailQueries(errors.New("syntax error"))
	_, err := m.ListPosts(context.Background(), post.Query{})
	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, st.Connected())

	mem.FailQueries(nil)
	mem.SetAvailable(false)
	_, err = m.CreatePost(context.Background(), post.Draft{Title: "t", Content: "c"})
	require.Error(t, err)
	assert.Len(t, got, 1)
	assert.False(t, st.Connected())
}

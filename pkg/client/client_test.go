package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/braindump/internal/health"
	"github.com/loykin/braindump/internal/post"
)

// recordSleeps replaces the client's sleep with one that records delays.
func recordSleeps(c *Client) *[]time.Duration {
	var mu sync.Mutex
	var got []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		got = append(got, d)
		mu.Unlock()
		return nil
	}
	return &got
}

func TestRetriesUnavailableThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Database temporarily unavailable"}`))
			return
		}
		_ = json.NewEncoder(w).Encode([]post.Post{{ID: 1, Title: "t"}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	delays := recordSleeps(c)

	posts, err := c.ListPosts(context.Background(), post.Query{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestBadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Title and content are required"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	delays := recordSleeps(c)

	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL+"/api/posts", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *delays)

	_, err = c.ListPosts(context.Background(), post.Query{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "Title and content are required", se.Message)
}

func TestExhaustedAttemptsSurfaceLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	delays := recordSleeps(c)

	_, err := c.ListPosts(context.Background(), post.Query{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Unavailable())
	// no sleep after the final attempt
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestTransportErrorsAreRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base + "/api", Timeout: time.Second})
	delays := recordSleeps(c)

	_, err := c.ListPosts(context.Background(), post.Query{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Len(t, *delays, 2)
}

func TestDelayCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxAttempts: 6})
	delays := recordSleeps(c)
	_, _ = c.Do(context.Background(), http.MethodGet, srv.URL, nil)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}, *delays)
}

func TestCreatePost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var d post.Draft
		_ = json.NewDecoder(r.Body).Decode(&d)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(post.Post{ID: 9, Title: d.Title, Content: d.Content, Category: "thought", CreatedAt: time.Now()})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	p, err := c.CreatePost(context.Background(), post.Draft{Title: "  T ", Content: "C"})
	require.NoError(t, err)
	assert.Equal(t, "T", p.Title)
	assert.Equal(t, "thought", p.Category)

	_, err = c.CreatePost(context.Background(), post.Draft{Title: " ", Content: "C"})
	assert.ErrorIs(t, err, post.ErrValidation)
}

func TestHealthDegradedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(health.Status{Status: health.StatusDegraded, Checks: health.Checks{Database: health.Unhealthy}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	st, err := c.Health(context.Background(), 0)
	require.Error(t, err)
	require.NotNil(t, st)
	assert.Equal(t, health.Unhealthy, st.Checks.Database)
}

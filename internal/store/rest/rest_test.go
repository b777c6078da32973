package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

func TestListPostsQueryMapping(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]post.Post{{ID: 7, Title: "a", Content: "b", Category: "idea", CreatedAt: time.Unix(0, 0).UTC()}})
	}))
	defer srv.Close()

	s, err := New(store.Config{URL: srv.URL, APIKey: "anon"}, srv.Client())
	require.NoError(t, err)

	posts, err := s.ListPosts(context.Background(), post.Query{Page: 2, Limit: 10, Category: "idea"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(7), posts[0].ID)

	require.NotNil(t, got)
	assert.Equal(t, "/rest/v1/Blog Posts", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "*", q.Get("select"))
	assert.Equal(t, "created_at.desc", q.Get("order"))
	assert.Equal(t, "eq.idea", q.Get("category"))
	assert.Equal(t, "20", q.Get("offset"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "anon", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer anon", got.Header.Get("Authorization"))
}

func TestCreatePostReturnsRepresentation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Prefer") != "return=representation" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var in []post.Draft
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]post.Post{{ID: 1, Title: in[0].Title, Content: in[0].Content, Category: in[0].Category, CreatedAt: time.Now().UTC()}})
	}))
	defer srv.Close()

	s, err := New(store.Config{URL: srv.URL}, srv.Client())
	require.NoError(t, err)
	p, err := s.CreatePost(context.Background(), post.Draft{Title: " T ", Content: "C"})
	require.NoError(t, err)
	assert.Equal(t, "T", p.Title)
	assert.Equal(t, post.DefaultCategory, p.Category)
}

func TestServerErrorsAreUnavailable(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s, err := New(store.Config{URL: srv.URL}, srv.Client())
	require.NoError(t, err)

	err = s.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))

	status = http.StatusBadRequest
	_, err = s.ListPosts(context.Background(), post.Query{})
	require.Error(t, err)
	assert.False(t, store.IsUnavailable(err))
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := New(store.Config{URL: url}, &http.Client{Timeout: time.Second})
	require.NoError(t, err)
	err = s.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))
}

func TestListAllPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		n := post.MaxLimit
		if r.URL.Query().Get("offset") != "0" {
			n = 3
		}
		out := make([]post.Post, n)
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	s, err := New(store.Config{URL: srv.URL}, srv.Client())
	require.NoError(t, err)
	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, post.MaxLimit+3)
	assert.Equal(t, 2, calls)
}

func TestEmptyURL(t *testing.T) {
	_, err := New(store.Config{}, nil)
	require.Error(t, err)
}

func TestTruncatedBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte(`[{"id":1,"title":"cut`))
	}))
	defer srv.Close()

	s, err := New(store.Config{URL: srv.URL, APIKey: "anon"}, srv.Client())
	require.NoError(t, err)
	_, err = s.ListPosts(context.Background(), post.Query{})
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err), "got %v", err)
}

func TestSlotHeldWhileBodyIsRead(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,`))
		w.(http.Flusher).Flush()
		<-release
		_, _ = w.Write([]byte(`"title":"slow"}]`))
	}))
	defer srv.Close()

	s, err := New(store.Config{URL: srv.URL, APIKey: "anon"}, srv.Client())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.ListPosts(context.Background(), post.Query{})
		done <- err
	}()
	require.Eventually(t, func() bool { return s.Stats().Total == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.Stats().Total, "slot must stay taken until the body is consumed")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, s.Stats().Total)
}

package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/braindump/internal/history"
)

func TestSendIndexesDocument(t *testing.T) {
	var path string
	var got history.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := New(srv.URL+"/", "")
	e := history.Event{Type: history.EventGivenUp, OccurredAt: time.Now().UTC(), Instance: "n1", Attempt: 10, Reason: "keep-alive failures"}
	require.NoError(t, s.Send(context.Background(), e))
	assert.Equal(t, "/"+DefaultIndex+"/_doc", path)
	assert.Equal(t, history.EventGivenUp, got.Type)
	assert.Equal(t, 10, got.Attempt)
}

func TestSendReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(srv.URL, "idx").Send(context.Background(), history.Event{Type: history.EventConnected})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

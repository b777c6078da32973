package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/braindump/internal/history"
	"github.com/loykin/braindump/internal/history/opensearch"
	"github.com/loykin/braindump/internal/history/sqlsink"
)

func TestSQLiteDSNs(t *testing.T) {
	dir := t.TempDir()
	for _, dsn := range []string{
		filepath.Join(dir, "a.db"),
		"sqlite://" + filepath.Join(dir, "b.db"),
	} {
		s, err := NewSinkFromDSN(context.Background(), dsn)
		require.NoError(t, err, dsn)
		assert.IsType(t, &sqlsink.Sink{}, s)
		_ = s.(*sqlsink.Sink).Close()
	}
}

func TestOpenSearchDSN(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		var e history.Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	s, err := NewSinkFromDSN(context.Background(), "opensearch://"+host+"/braindump-events")
	require.NoError(t, err)
	assert.IsType(t, &opensearch.Sink{}, s)
	require.NoError(t, s.Send(context.Background(), history.Event{Type: history.EventConnected, OccurredAt: time.Now()}))
	assert.Equal(t, "/braindump-events/_doc", path)
}

func TestUnsupportedAndEmpty(t *testing.T) {
	_, err := NewSinkFromDSN(context.Background(), "")
	require.Error(t, err)
	_, err = NewSinkFromDSN(context.Background(), "kafka://broker:9092/topic")
	require.Error(t, err)
}

func TestNewSinksClosesOnFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := NewSinks(context.Background(), []string{filepath.Join(dir, "ok.db"), "kafka://x"})
	require.Error(t, err)
}

package factory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
	"github.com/loykin/braindump/internal/store/memory"
)

// schemaStore fails EnsureSchema with schemaErr and records Close.
type schemaStore struct {
	*memory.Store
	closed bool
}

var schemaErr error

func (s *schemaStore) EnsureSchema(context.Context) error { return schemaErr }

func (s *schemaStore) Close() error {
	s.closed = true
	return nil
}

var lastSchemaStore *schemaStore

func init() {
	store.RegisterStoreType("schema-test", func(store.Config) (store.Store, error) {
		lastSchemaStore = &schemaStore{Store: memory.New()}
		return lastSchemaStore, nil
	})
}

func TestTypesRegistered(t *testing.T) {
	want := map[string]bool{"memory": false, "postgres": false, "rest": false, "sqlite": false}
	for _, typ := range Types() {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("backend %q not registered", typ)
		}
	}
}

func TestNewSQLiteEnsuresSchema(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, store.Config{Type: "SQLite", Path: filepath.Join(t.TempDir(), "f.db")}, true)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.CreatePost(ctx, post.Draft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("create after schema: %v", err)
	}
}

func TestNewUnknownType(t *testing.T) {
	if _, err := New(context.Background(), store.Config{Type: "mongo"}, false); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestSchemaFailureWhileUnreachableKeepsStore(t *testing.T) {
	schemaErr = store.Unavailable(errors.New("connection refused"))
	s, err := New(context.Background(), store.Config{Type: "schema-test"}, true)
	if err == nil || !store.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if s == nil || lastSchemaStore.closed {
		t.Fatalf("store must stay open for a degraded start")
	}
}

func TestSchemaFailureOtherwiseClosesStore(t *testing.T) {
	schemaErr = errors.New("permission denied for schema public")
	s, err := New(context.Background(), store.Config{Type: "schema-test"}, true)
	if err == nil || s != nil {
		t.Fatalf("expected error and no store, got %v, %v", s, err)
	}
	if !lastSchemaStore.closed {
		t.Fatalf("store must be closed")
	}
}

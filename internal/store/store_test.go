package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/loykin/braindump/internal/post"
)

type nopStore struct{}

func (nopStore) Ping(context.Context) error                                { return nil }
func (nopStore) ListPosts(context.Context, post.Query) ([]post.Post, error) { return nil, nil }
func (nopStore) CreatePost(context.Context, post.Draft) (post.Post, error)  { return post.Post{}, nil }
func (nopStore) Stats() PoolStats                                         { return PoolStats{} }
func (nopStore) Close() error                                             { return nil }

func TestFactoryRegisterAndCreate(t *testing.T) {
	f := &DefaultFactory{builders: map[string]Builder{}}
	f.RegisterStoreType("nop", func(Config) (Store, error) { return nopStore{}, nil })
	if _, err := f.CreateStore(Config{Type: "nop"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := f.CreateStore(Config{Type: "bogus"})
	if err == nil || !strings.Contains(err.Error(), "unsupported store type") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if got := f.SupportedTypes(); len(got) != 1 || got[0] != "nop" {
		t.Fatalf("unexpected types: %v", got)
	}
}

func TestUnavailableWrapping(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := Unavailable(base)
	if !IsUnavailable(err) || !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to match both sentinel and cause: %v", err)
	}
	if Unavailable(err) != err {
		t.Fatalf("double wrap should be a no-op")
	}
	if Unavailable(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestIsNetworkError(t *testing.T) {
	op := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	if !IsNetworkError(fmt.Errorf("query: %w", op)) {
		t.Fatalf("expected net.OpError to be a network error")
	}
	if !IsNetworkError(context.DeadlineExceeded) {
		t.Fatalf("expected deadline to be a network error")
	}
	if IsNetworkError(errors.New("syntax error")) {
		t.Fatalf("plain error is not a network error")
	}
}

func TestConfigDefaultsAndDSN(t *testing.T) {
	c := Config{Type: "postgres", Password: "pw"}.WithDefaults()
	if c.MaxConns != DefaultMaxConns || c.AcquireTimeout != DefaultAcquireTimeout || c.KeepAlive != DefaultKeepAlive {
		t.Fatalf("unexpected pool defaults: %+v", c)
	}
	dsn := c.PostgresDSN()
	for _, want := range []string{"host='localhost'", "port=5432", "user='postgres'", "password='pw'", "dbname='braindump'", "sslmode='disable'"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
	c.DSN = "postgres://x"
	if c.PostgresDSN() != "postgres://x" {
		t.Fatalf("explicit DSN must win")
	}
}

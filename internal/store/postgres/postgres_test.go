package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

// startPostgresContainer starts a PostgreSQL container for tests
// and returns a DSN. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("braindump"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	dsn, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get connection string: %v", err)
		return "", nil
	}

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, db *DB) {
	t.Helper()
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := db.Ping(ctx)
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresPostsLifecycle(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	defer terminate()

	db, err := New(context.Background(), store.Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	waitForPostgres(t, db)

	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx))

	created, err := db.CreatePost(ctx, post.Draft{Title: "T", Content: "C"})
	require.NoError(t, err)
	require.Equal(t, post.DefaultCategory, created.Category)
	require.False(t, created.CreatedAt.IsZero())
	require.NotZero(t, created.ID)

	base := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)
	seed := make([]post.Post, 0, 25)
	for i := 0; i < 25; i++ {
		cat := "thought"
		if i%5 == 0 {
			cat = "question"
		}
		seed = append(seed, post.Post{
			Title:     fmt.Sprintf("post-%02d", i),
			Content:   "body",
			Category:  cat,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, db.ReplaceAll(ctx, seed))

	page, err := db.ListPosts(ctx, post.Query{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 10)
	// newest first: page 1 holds posts 14..5
	require.Equal(t, "post-14", page[0].Title)
	require.Equal(t, "post-05", page[9].Title)

	asc, err := db.ListPosts(ctx, post.Query{Limit: 3, Ascending: true})
	require.NoError(t, err)
	require.Equal(t, "post-00", asc[0].Title)

	questions, err := db.ListPosts(ctx, post.Query{Limit: 10, Category: "question"})
	require.NoError(t, err)
	require.Len(t, questions, 5)

	empty, err := db.ListPosts(ctx, post.Query{Page: 5, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, empty)

	st := db.Stats()
	require.GreaterOrEqual(t, st.Total, 1)
	require.Zero(t, st.Waiting)
}

func TestPostgresUnreachableIsUnavailable(t *testing.T) {
	db, err := New(context.Background(), store.Config{
		Host:           "127.0.0.1",
		Port:           1,
		AcquireTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = db.Ping(context.Background())
	require.Error(t, err)
	require.True(t, store.IsUnavailable(err), "expected unavailable, got %v", err)

	_, err = db.ListPosts(context.Background(), post.Query{})
	require.True(t, store.IsUnavailable(err))
}

func TestClassify(t *testing.T) {
	require.Nil(t, classify(nil))
	require.True(t, store.IsUnavailable(classify(&pgconn.PgError{Code: "08006"})))
	require.True(t, store.IsUnavailable(classify(&pgconn.PgError{Code: "57P01"})))
	require.False(t, store.IsUnavailable(classify(&pgconn.PgError{Code: "42P01"})))
	require.True(t, store.IsUnavailable(classify(fmt.Errorf("read: %w", context.DeadlineExceeded))))
	require.False(t, store.IsUnavailable(classify(errors.New("syntax"))))
}

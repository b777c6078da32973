package store

import (
	"context"

	"github.com/loykin/braindump/internal/post"
)

// Store is the storage backend for posts.
// Ping is the liveness probe (a SELECT 1 equivalent). Stats is a best-effort
// snapshot of the backend's connection pool at call time.
type Store interface {
	Ping(ctx context.Context) error
	ListPosts(ctx context.Context, q post.Query) ([]post.Post, error)
	CreatePost(ctx context.Context, d post.Draft) (post.Post, error)
	Stats() PoolStats
	Close() error
}

// SchemaEnsurer is implemented by backends that own their schema.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Importer replaces every stored post with the given set, preserving CreatedAt.
// Used by the migration command.
type Importer interface {
	ReplaceAll(ctx context.Context, posts []post.Post) error
}

// PoolStats is a point-in-time view of a backend connection pool.
type PoolStats struct {
	Total   int `json:"total"`
	Idle    int `json:"idle"`
	Waiting int `json:"waiting"`
}

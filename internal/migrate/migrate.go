// Package migrate copies every post from the hosted REST table into the
// local store, replacing what is there.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

// Source lists every post to migrate.
type Source interface {
	ListAll(ctx context.Context) ([]post.Post, error)
}

type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Result summarises one run.
type Result struct {
	Migrated int
	Titles   []string
}

// Run fetches all posts from src and replaces the contents of dst with them.
// Empty categories become post.DefaultCategory and missing timestamps
// become the current time; original creation times are kept otherwise.
func Run(ctx context.Context, src Source, dst store.Importer, opts Options) (Result, error) {
	if src == nil || dst == nil {
		return Result{}, errors.New("migrate: source and target are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	opts.Logger.Info("Starting data migration")
	posts, err := src.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch source posts: %w", err)
	}
	opts.Logger.Info("Found posts to migrate", "count", len(posts))

	res := Result{Titles: make([]string, 0, len(posts))}
	for i := range posts {
		if posts[i].Category == "" {
			posts[i].Category = post.DefaultCategory
		}
		if posts[i].CreatedAt.IsZero() {
			posts[i].CreatedAt = opts.Now().UTC()
		}
		res.Titles = append(res.Titles, posts[i].Title)
	}

	if err := dst.ReplaceAll(ctx, posts); err != nil {
		return Result{}, fmt.Errorf("replace local posts: %w", err)
	}
	for _, t := range res.Titles {
		opts.Logger.Debug("Migrated", "title", t)
	}
	res.Migrated = len(posts)
	opts.Logger.Info("Migration completed successfully", "migrated", res.Migrated)
	return res, nil
}

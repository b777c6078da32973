package client

import (
	"context"
	"sync"

	"github.com/loykin/braindump/internal/post"
)

// FailureMessage is shown when a load fails and nothing is displayed yet.
const FailureMessage = "Failed to load posts. Please check your connection and try again."

// Feed is a paged, filterable list of posts ("Load More" style).
//
// Loads are not sequenced: a slow response from before a category change can
// still append to the list after the change. Callers that need strict
// ordering must serialise Load, LoadMore and SetCategory themselves.
type Feed struct {
	c        *Client
	pageSize int

	mu        sync.Mutex
	page      int
	category  string
	ascending bool
	posts     []post.Post
	hasMore   bool
	err       error
}

func NewFeed(c *Client, pageSize int) *Feed {
	if pageSize <= 0 {
		pageSize = post.DefaultLimit
	}
	return &Feed{c: c, pageSize: pageSize, hasMore: true}
}

// Load clears the list and fetches the first page.
func (f *Feed) Load(ctx context.Context) error {
	f.mu.Lock()
	f.page = 0
	f.posts = nil
	f.hasMore = true
	f.mu.Unlock()
	return f.fetch(ctx)
}

// LoadMore appends the next page. A failed load leaves the page counter
// where it was, so the next call asks for the same page again.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	f.page++
	page := f.page
	f.mu.Unlock()

	err := f.fetch(ctx)
	if err != nil {
		f.mu.Lock()
		// a Load in the meantime already reset paging
		if f.page == page {
			f.page--
		}
		f.mu.Unlock()
	}
	return err
}

// SetCategory changes the filter ("" means all) and reloads from page 0.
func (f *Feed) SetCategory(ctx context.Context, category string) error {
	f.mu.Lock()
	f.category = category
	f.mu.Unlock()
	return f.Load(ctx)
}

// SetAscending changes the order and reloads from page 0.
func (f *Feed) SetAscending(ctx context.Context, asc bool) error {
	f.mu.Lock()
	f.ascending = asc
	f.mu.Unlock()
	return f.Load(ctx)
}

// SetFilter changes category and order together and reloads once.
func (f *Feed) SetFilter(ctx context.Context, category string, asc bool) error {
	f.mu.Lock()
	f.category = category
	f.ascending = asc
	f.mu.Unlock()
	return f.Load(ctx)
}

func (f *Feed) fetch(ctx context.Context) error {
	f.mu.Lock()
	q := post.Query{Page: f.page, Limit: f.pageSize, Category: f.category, Ascending: f.ascending}
	f.mu.Unlock()

	got, err := f.c.ListPosts(ctx, q)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	if err != nil {
		return err
	}
	f.posts = append(f.posts, got...)
	if len(got) < f.pageSize {
		f.hasMore = false
	}
	return nil
}

// Posts returns a copy of the displayed posts.
func (f *Feed) Posts() []post.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]post.Post(nil), f.posts...)
}

// HasMore reports whether "Load More" should be offered.
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// Message returns FailureMessage when the last load failed with nothing
// displayed. Partial results are kept on later page failures.
func (f *Feed) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && len(f.posts) == 0 {
		return FailureMessage
	}
	return ""
}

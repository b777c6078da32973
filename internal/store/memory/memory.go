// Package memory is an in-process store used for local runs and tests.
// Its availability can be toggled to simulate a dropped database.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

// ErrDown is returned (wrapped as store.ErrUnavailable) while the store is marked unavailable.
var ErrDown = errors.New("memory store is down")

func init() {
	store.RegisterStoreType("memory", func(store.Config) (store.Store, error) { return New(), nil })
}

type Store struct {
	mu     sync.RWMutex
	posts  []post.Post
	nextID int64
	down   bool
	failOn error
	now    func() time.Time
}

func New() *Store {
	return &Store{nextID: 1, now: time.Now}
}

// SetAvailable toggles simulated connectivity.
func (s *Store) SetAvailable(ok bool) {
	s.mu.Lock()
	s.down = !ok
	s.mu.Unlock()
}

// FailQueries makes ListPosts and CreatePost return err while connectivity is up.
// A nil err clears it.
func (s *Store) FailQueries(err error) {
	s.mu.Lock()
	s.failOn = err
	s.mu.Unlock()
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down {
		return store.Unavailable(ErrDown)
	}
	return nil
}

func (s *Store) ListPosts(_ context.Context, q post.Query) ([]post.Post, error) {
	q = q.WithDefaults()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down {
		return nil, store.Unavailable(ErrDown)
	}
	if s.failOn != nil {
		return nil, s.failOn
	}
	matched := make([]post.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if q.Category == "" || p.Category == q.Category {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if q.Ascending {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if q.Ascending {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	off := q.Offset()
	if off >= len(matched) {
		return []post.Post{}, nil
	}
	end := off + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]post.Post, end-off)
	copy(out, matched[off:end])
	return out, nil
}

func (s *Store) CreatePost(_ context.Context, d post.Draft) (post.Post, error) {
	d = d.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return post.Post{}, store.Unavailable(ErrDown)
	}
	if s.failOn != nil {
		return post.Post{}, s.failOn
	}
	p := post.Post{ID: s.nextID, Title: d.Title, Content: d.Content, Category: d.Category, CreatedAt: s.now().UTC()}
	s.nextID++
	s.posts = append(s.posts, p)
	return p, nil
}

// ReplaceAll drops every post and stores posts with fresh ids.
func (s *Store) ReplaceAll(_ context.Context, posts []post.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return store.Unavailable(ErrDown)
	}
	s.posts = s.posts[:0]
	s.nextID = 1
	for _, p := range posts {
		p.ID = s.nextID
		s.nextID++
		if p.Category == "" {
			p.Category = post.DefaultCategory
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now().UTC()
		}
		s.posts = append(s.posts, p)
	}
	return nil
}

func (s *Store) Stats() store.PoolStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.down {
		return store.PoolStats{}
	}
	return store.PoolStats{Total: 1, Idle: 1}
}

func (s *Store) Close() error { return nil }

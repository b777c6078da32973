// Package rest stores posts in a hosted Postgres exposed through a PostgREST
// compatible HTTP API (Supabase style: /rest/v1/<table>).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

func init() {
	store.RegisterStoreType("rest", func(cfg store.Config) (store.Store, error) { return New(cfg, nil) })
}

// Store talks to the REST proxy. Connection "pool" statistics are modelled
// as in-flight requests against the configured concurrency limit.
type Store struct {
	base    string
	apiKey  string
	client  *http.Client
	sem     chan struct{}
	acquire time.Duration
	waiting atomic.Int64
}

// New creates a REST store. A nil client uses a default client bounded by the
// acquire timeout.
func New(cfg store.Config, client *http.Client) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rest store: empty url")
	}
	cfg = cfg.WithDefaults()
	table := cfg.Table
	if table == "" {
		table = store.DefaultRESTTable
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	base := strings.TrimRight(cfg.URL, "/") + "/rest/v1/" + url.PathEscape(table)
	return &Store{
		base:    base,
		apiKey:  cfg.APIKey,
		client:  client,
		sem:     make(chan struct{}, cfg.MaxConns),
		acquire: cfg.AcquireTimeout,
	}, nil
}

// Ping issues the cheapest read the API allows: one id, one row.
func (s *Store) Ping(ctx context.Context) error {
	v := url.Values{}
	v.Set("select", "id")
	v.Set("limit", "1")
	return s.do(ctx, http.MethodGet, v, nil, nil, func(r io.Reader) error {
		_, err := io.Copy(io.Discard, r)
		return err
	})
}

// ListPosts maps the query onto PostgREST parameters:
// select=*, order=created_at.desc, category=eq.<cat>, offset, limit.
func (s *Store) ListPosts(ctx context.Context, q post.Query) ([]post.Post, error) {
	q = q.WithDefaults()
	v := url.Values{}
	v.Set("select", "*")
	v.Set("order", "created_at."+strings.ToLower(q.OrderKeyword()))
	if q.Category != "" {
		v.Set("category", "eq."+q.Category)
	}
	v.Set("offset", strconv.Itoa(q.Offset()))
	v.Set("limit", strconv.Itoa(q.Limit))

	out := make([]post.Post, 0)
	err := s.do(ctx, http.MethodGet, v, nil, nil, func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return fmt.Errorf("decode posts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll pages through every post in ascending creation order.
func (s *Store) ListAll(ctx context.Context) ([]post.Post, error) {
	var all []post.Post
	for page := 0; ; page++ {
		batch, err := s.ListPosts(ctx, post.Query{Page: page, Limit: post.MaxLimit, Ascending: true})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < post.MaxLimit {
			return all, nil
		}
	}
}

func (s *Store) CreatePost(ctx context.Context, d post.Draft) (post.Post, error) {
	d = d.Normalize()
	body, err := json.Marshal([]post.Draft{d})
	if err != nil {
		return post.Post{}, fmt.Errorf("marshal draft: %w", err)
	}
	hdr := http.Header{}
	hdr.Set("Prefer", "return=representation")
	var created []post.Post
	err = s.do(ctx, http.MethodPost, nil, bytes.NewReader(body), hdr, func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(&created); err != nil {
			return fmt.Errorf("decode created post: %w", err)
		}
		return nil
	})
	if err != nil {
		return post.Post{}, err
	}
	if len(created) == 0 {
		return post.Post{}, errors.New("rest store: insert returned no rows")
	}
	return created[0], nil
}

func (s *Store) Stats() store.PoolStats {
	busy := len(s.sem)
	return store.PoolStats{Total: busy, Idle: 0, Waiting: int(s.waiting.Load())}
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do runs one request under the concurrency limit and hands a 2xx body to
// read while the slot is still held. Transport failures, 5xx responses and
// bodies cut off mid-read are reported as store.ErrUnavailable, any other
// failure as a plain error.
func (s *Store) do(ctx context.Context, method string, q url.Values, body io.Reader, hdr http.Header, read func(io.Reader) error) error {
	if err := s.take(ctx); err != nil {
		return err
	}
	defer func() { <-s.sem }()

	u := s.base
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return store.Unavailable(fmt.Errorf("%s %s: %w", method, s.base, err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := read(resp.Body); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || store.IsNetworkError(err) {
				return store.Unavailable(fmt.Errorf("%s %s: read body: %w", method, s.base, err))
			}
			return err
		}
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("%s %s: HTTP %d: %s", method, s.base, resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 500 {
		return store.Unavailable(err)
	}
	return err
}

func (s *Store) take(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}
	s.waiting.Add(1)
	defer s.waiting.Add(-1)
	t := time.NewTimer(s.acquire)
	defer t.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-t.C:
		return store.Unavailable(errors.New("rest store: request slot acquire timeout"))
	case <-ctx.Done():
		return store.Unavailable(ctx.Err())
	}
}

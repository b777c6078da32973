package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/juju/clock"

	"github.com/loykin/braindump/internal/health"
	"github.com/loykin/braindump/internal/post"
)

// ErrTransport marks a network failure or timeout observed by the client.
var ErrTransport = errors.New("transport error")

// ErrHealthBody means /health answered 200 with something other than a
// health document.
var ErrHealthBody = errors.New("malformed health response")

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Unavailable reports whether the server asked to retry later.
func (e *StatusError) Unavailable() bool { return e.Code == http.StatusServiceUnavailable }

// ErrorResponse is the server's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client talks to the braindump API. Reads and writes go through Do, which
// retries unavailable responses and transport failures.
type Client struct {
	baseURL     string
	healthURL   string
	client      *http.Client
	logger      *slog.Logger
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	clock       clock.Clock
	sleep       func(ctx context.Context, d time.Duration) error
}

// Config holds client configuration
type Config struct {
	BaseURL     string        // API root, e.g. http://localhost:8001/api
	HealthURL   string        // defaults to BaseURL without /api plus /health
	Timeout     time.Duration // per attempt
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *slog.Logger
	HTTPClient  *http.Client
	Clock       clock.Clock
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8001/api",
		Timeout:     15 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// New creates a new API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.HealthURL == "" {
		config.HealthURL = strings.TrimSuffix(config.BaseURL, "/api") + "/health"
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	c := &Client{
		baseURL:     config.BaseURL,
		healthURL:   config.HealthURL,
		client:      config.HTTPClient,
		logger:      config.Logger,
		timeout:     config.Timeout,
		maxAttempts: config.MaxAttempts,
		baseDelay:   config.BaseDelay,
		maxDelay:    config.MaxDelay,
		clock:       config.Clock,
	}
	c.sleep = c.clockSleep
	return c
}

// HealthURL is the endpoint polled by Health.
func (c *Client) HealthURL() string { return c.healthURL }

func (c *Client) clockSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

func (c *Client) retryBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.baseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.maxDelay,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Do sends a request, retrying 503 responses and transport failures with
// delays of min(base*2^i, max) between attempts. Any other response is
// returned as is. After the last attempt the final error is returned:
// *StatusError for 503, an ErrTransport wrap for network failures.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	b := c.retryBackOff()
	var lastErr error
	for i := 0; i < c.maxAttempts; i++ {
		resp, err := c.once(ctx, method, rawURL, body, c.timeout)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
			}
			lastErr = err
			c.logger.Debug("Request failed", "url", rawURL, "attempt", i+1, "error", err)
		case resp.StatusCode == http.StatusServiceUnavailable:
			lastErr = decodeStatus(resp)
			c.logger.Debug("Server unavailable", "url", rawURL, "attempt", i+1)
		default:
			return resp, nil
		}
		if i == c.maxAttempts-1 {
			break
		}
		delay := b.NextBackOff()
		c.logger.Info("Retrying request", "url", rawURL, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	return nil, lastErr
}

// once performs a single attempt bounded by timeout. The attempt's
// deadline stays in force until the response body is closed.
func (c *Client) once(ctx context.Context, method, rawURL string, body []byte, timeout time.Duration) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(actx, method, rawURL, rdr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// decodeStatus consumes and closes resp, returning a *StatusError.
func decodeStatus(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	var er ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &er); err != nil || er.Error == "" {
		return &StatusError{Code: resp.StatusCode}
	}
	return &StatusError{Code: resp.StatusCode, Message: er.Error}
}

// ListPosts fetches one page of posts.
func (c *Client) ListPosts(ctx context.Context, q post.Query) ([]post.Post, error) {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	limit := q.Limit
	if limit <= 0 {
		limit = post.DefaultLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	v.Set("ascending", strconv.FormatBool(q.Ascending))
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	resp, err := c.Do(ctx, http.MethodGet, c.baseURL+"/posts?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeStatus(resp)
	}
	defer func() { _ = resp.Body.Close() }()
	posts := make([]post.Post, 0)
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return posts, nil
}

// CreatePost trims and validates the draft locally before sending it.
func (c *Client) CreatePost(ctx context.Context, d post.Draft) (post.Post, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
	if err := d.Validate(); err != nil {
		return post.Post{}, err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return post.Post{}, fmt.Errorf("marshal draft: %w", err)
	}
	resp, err := c.Do(ctx, http.MethodPost, c.baseURL+"/posts", data)
	if err != nil {
		return post.Post{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		return post.Post{}, decodeStatus(resp)
	}
	defer func() { _ = resp.Body.Close() }()
	var created post.Post
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return post.Post{}, fmt.Errorf("decode post: %w", err)
	}
	return created, nil
}

// Health performs a single, non-retried health request. A degraded server
// answers 503 with a body; that body is returned together with a *StatusError.
func (c *Client) Health(ctx context.Context, timeout time.Duration) (*health.Status, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	resp, err := c.once(ctx, http.MethodGet, c.healthURL, nil, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var st health.Status
	decErr := json.NewDecoder(resp.Body).Decode(&st)
	if resp.StatusCode != http.StatusOK {
		if decErr != nil {
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return &st, &StatusError{Code: resp.StatusCode, Message: st.Status}
	}
	if decErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrHealthBody, decErr)
	}
	return &st, nil
}

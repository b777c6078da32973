// Package post defines the blog post record, its draft form and the paging
// query shared by the API, the storage backends and the client.
package post

import (
	"errors"
	"math"
	"strings"
	"time"
)

// DefaultCategory is assigned to posts created without a category.
const DefaultCategory = "thought"

// Default paging values used by the API and the client feed.
const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps Page*Limit within int for any accepted limit.
	MaxPage = math.MaxInt / MaxLimit
)

// ErrValidation marks a request that is missing a required field.
// It is never retried and never logged as an incident.
var ErrValidation = errors.New("validation failed")

// Post is a single blog entry. Posts are immutable once created.
type Post struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the writable part of a Post. CreatedAt and ID are assigned by storage.
type Draft struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

// Normalize trims surrounding whitespace and applies the default category.
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
	d.Category = strings.TrimSpace(d.Category)
	if d.Category == "" {
		d.Category = DefaultCategory
	}
	return d
}

// Validate reports ErrValidation when title or content is empty.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Content) == "" {
		return &ValidationError{Msg: "Title and content are required"}
	}
	return nil
}

// ValidationError carries a human readable message and matches ErrValidation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Query selects a page of posts. Offset is Page*Limit.
type Query struct {
	Page      int
	Limit     int
	Category  string
	Ascending bool
}

// WithDefaults fills zero values and clamps page and limit.
func (q Query) WithDefaults() Query {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	q.Category = strings.TrimSpace(q.Category)
	return q
}

// Offset returns the number of rows to skip. It saturates instead of
// overflowing for queries that skipped WithDefaults.
func (q Query) Offset() int {
	if q.Page <= 0 || q.Limit <= 0 {
		return 0
	}
	if q.Page > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return q.Page * q.Limit
}

// OrderKeyword returns the SQL ordering keyword for created_at.
func (q Query) OrderKeyword() string {
	if q.Ascending {
		return "ASC"
	}
	return "DESC"
}

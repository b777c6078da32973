package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

// tsLayout matches strftime('%Y-%m-%dT%H:%M:%fZ') so text ordering is chronological.
const tsLayout = "2006-01-02T15:04:05.000Z"

func init() {
	store.RegisterStoreType("sqlite", func(cfg store.Config) (store.Store, error) { return New(cfg) })
}

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// Path is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db             *sql.DB
	acquireTimeout time.Duration
	waiting        atomic.Int64
}

// New opens a SQLite database at cfg.Path.
func New(cfg store.Config) (*DB, error) {
	p := strings.TrimSpace(cfg.Path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	cfg = cfg.WithDefaults()
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if p == ":memory:" {
		// every connection to :memory: is a separate database
		d.SetMaxOpenConns(1)
	} else {
		d.SetMaxOpenConns(cfg.MaxConns)
	}
	d.SetMaxIdleConns(cfg.MaxConns)
	d.SetConnMaxIdleTime(0)
	d.SetConnMaxLifetime(0)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d, acquireTimeout: cfg.AcquireTimeout}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blog_posts(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'thought',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_blog_posts_created_at ON blog_posts(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_blog_posts_category ON blog_posts(category);`,
	}
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	for _, q := range stmts {
		if _, err := conn.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Ping(ctx context.Context) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	var one int
	return conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (s *DB) ListPosts(ctx context.Context, q post.Query) ([]post.Post, error) {
	q = q.WithDefaults()
	query := `SELECT id, title, content, category, created_at FROM blog_posts`
	var args []any
	if q.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, q.Category)
	}
	query += fmt.Sprintf(` ORDER BY created_at %s, id %s LIMIT ? OFFSET ?`, q.OrderKeyword(), q.OrderKeyword())
	args = append(args, q.Limit, q.Offset())

	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanPosts(rows)
}

func (s *DB) CreatePost(ctx context.Context, d post.Draft) (post.Post, error) {
	d = d.Normalize()
	conn, err := s.conn(ctx)
	if err != nil {
		return post.Post{}, err
	}
	defer func() { _ = conn.Close() }()
	row := conn.QueryRowContext(ctx, `
		INSERT INTO blog_posts(title, content, category, created_at)
		VALUES(?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		RETURNING id, title, content, category, created_at;`,
		d.Title, d.Content, d.Category)
	var (
		p  post.Post
		ts string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &ts); err != nil {
		return post.Post{}, err
	}
	if p.CreatedAt, err = parseTS(ts); err != nil {
		return post.Post{}, err
	}
	return p, nil
}

// ReplaceAll deletes every post and inserts posts in one transaction.
func (s *DB) ReplaceAll(ctx context.Context, posts []post.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM blog_posts;`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO blog_posts(title, content, category, created_at) VALUES(?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, p := range posts {
		cat := p.Category
		if cat == "" {
			cat = post.DefaultCategory
		}
		created := p.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, p.Title, p.Content, cat, created.UTC().Format(tsLayout)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *DB) Stats() store.PoolStats {
	st := s.db.Stats()
	return store.PoolStats{Total: st.OpenConnections, Idle: st.Idle, Waiting: int(s.waiting.Load())}
}

// conn acquires a dedicated connection within the acquire timeout.
func (s *DB) conn(ctx context.Context) (*sql.Conn, error) {
	s.waiting.Add(1)
	defer s.waiting.Add(-1)
	actx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()
	c, err := s.db.Conn(actx)
	if err != nil {
		return nil, store.Unavailable(fmt.Errorf("acquire connection: %w", err))
	}
	return c, nil
}

func scanPosts(rows *sql.Rows) ([]post.Post, error) {
	out := make([]post.Post, 0)
	for rows.Next() {
		var (
			p  post.Post
			ts string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &ts); err != nil {
			return nil, err
		}
		t, err := parseTS(ts)
		if err != nil {
			return nil, err
		}
		p.CreatedAt = t
		out = append(out, p)
	}
	return out, rows.Err()
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t.UTC(), nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loykin/braindump/internal/post"
	"github.com/loykin/braindump/internal/store"
)

// noIdleTimeout keeps idle connections open for the life of the process.
const noIdleTimeout = 100 * 365 * 24 * time.Hour

func init() {
	build := func(cfg store.Config) (store.Store, error) { return New(context.Background(), cfg) }
	store.RegisterStoreType("postgres", build)
	store.RegisterStoreType("postgresql", build)
}

// DB implements store.Store on a pgx connection pool.
type DB struct {
	pool           *pgxpool.Pool
	table          string
	acquireTimeout time.Duration
	waiting        atomic.Int64
}

// New creates the pool. No connection is dialed until the first acquire,
// so an unreachable server does not fail construction.
func New(ctx context.Context, cfg store.Config) (*DB, error) {
	cfg = cfg.WithDefaults()
	pc, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = 0
	pc.MaxConnIdleTime = noIdleTimeout
	pc.MaxConnLifetime = noIdleTimeout
	pc.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	dialer := &net.Dialer{Timeout: cfg.AcquireTimeout, KeepAlive: cfg.KeepAlive}
	pc.ConnConfig.DialFunc = dialer.DialContext

	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	table := cfg.Table
	if table == "" || table == store.DefaultRESTTable {
		table = store.DefaultTable
	}
	return &DB{pool: p, table: table, acquireTimeout: cfg.AcquireTimeout}, nil
}

func (d *DB) EnsureSchema(ctx context.Context) error {
	ident := pgx.Identifier{d.table}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + ident + `(
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'thought',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_` + d.table + `_created_at ON ` + ident + `(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_` + d.table + `_category ON ` + ident + `(category);`,
	}
	conn, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	for _, q := range stmts {
		if _, err := conn.Exec(ctx, q); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Ping issues SELECT 1 on a pooled connection so that a silently dropped
// connection is discovered and evicted.
func (d *DB) Ping(ctx context.Context) error {
	conn, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "SELECT 1"); err != nil {
		return classify(err)
	}
	return nil
}

func (d *DB) ListPosts(ctx context.Context, q post.Query) ([]post.Post, error) {
	q = q.WithDefaults()
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, title, content, category, created_at FROM `)
	sb.WriteString(pgx.Identifier{d.table}.Sanitize())
	if q.Category != "" {
		args = append(args, q.Category)
		sb.WriteString(` WHERE category = $1`)
	}
	fmt.Fprintf(&sb, ` ORDER BY created_at %s LIMIT $%d OFFSET $%d`, q.OrderKeyword(), len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset())

	conn, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	rows, err := conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out, err := scanPosts(rows)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (d *DB) CreatePost(ctx context.Context, dr post.Draft) (post.Post, error) {
	dr = dr.Normalize()
	conn, err := d.acquire(ctx)
	if err != nil {
		return post.Post{}, err
	}
	defer conn.Release()
	var p post.Post
	err = conn.QueryRow(ctx, `
		INSERT INTO `+pgx.Identifier{d.table}.Sanitize()+` (title, content, category, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, title, content, category, created_at`,
		dr.Title, dr.Content, dr.Category).Scan(&p.ID, &p.Title, &p.Content, &p.Category, &p.CreatedAt)
	if err != nil {
		return post.Post{}, classify(err)
	}
	return p, nil
}

// ReplaceAll deletes every post and bulk-loads posts in one transaction.
func (d *DB) ReplaceAll(ctx context.Context, posts []post.Post) error {
	conn, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	tx, err := conn.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM `+pgx.Identifier{d.table}.Sanitize()); err != nil {
		return classify(err)
	}
	rows := make([][]any, 0, len(posts))
	for _, p := range posts {
		cat := p.Category
		if cat == "" {
			cat = post.DefaultCategory
		}
		created := p.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		rows = append(rows, []any{p.Title, p.Content, cat, created})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{d.table}, []string{"title", "content", "category", "created_at"}, pgx.CopyFromRows(rows)); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

func (d *DB) Stats() store.PoolStats {
	st := d.pool.Stat()
	return store.PoolStats{
		Total:   int(st.TotalConns()),
		Idle:    int(st.IdleConns()),
		Waiting: int(d.waiting.Load()),
	}
}

// acquire bounds connection acquisition by the configured timeout. A timeout
// here means the pool is exhausted or the server is unreachable.
func (d *DB) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	d.waiting.Add(1)
	defer d.waiting.Add(-1)
	actx, cancel := context.WithTimeout(ctx, d.acquireTimeout)
	defer cancel()
	conn, err := d.pool.Acquire(actx)
	if err != nil {
		return nil, store.Unavailable(fmt.Errorf("acquire connection: %w", err))
	}
	return conn, nil
}

func scanPosts(rows pgx.Rows) ([]post.Post, error) {
	out := make([]post.Post, 0)
	for rows.Next() {
		var p post.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// classify marks connection-class failures as store.ErrUnavailable.
// SQLSTATE class 08 is connection exception; 57P01..57P03 are server shutdown
// and cannot-connect-now.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return store.Unavailable(err)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) || store.IsNetworkError(err) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "conn closed") {
		return store.Unavailable(err)
	}
	return err
}

package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/braindump/internal/history"
)

const DefaultTable = "connection_history"

type Options struct {
	Addr     string // host:port of the native protocol, default localhost:9000
	Database string
	Username string
	Password string
	Table    string
}

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(ctx context.Context, o Options) (*Sink, error) {
	if o.Addr == "" {
		o.Addr = "localhost:9000"
	}
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	if o.Table == "" {
		o.Table = DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{Database: o.Database, Username: o.Username, Password: o.Password},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping ClickHouse: %w", err)
	}
	s := &Sink{conn: conn, table: o.Table}
	if err := s.ensureTable(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	err := s.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		type LowCardinality(String),
		occurred_at DateTime64(6, 'UTC'),
		instance String,
		reason String,
		attempt UInt32,
		consecutive_failures UInt32,
		retry_count UInt32
	) ENGINE = MergeTree()
	ORDER BY (occurred_at, instance)`)
	if err != nil {
		return fmt.Errorf("create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	err := s.conn.Exec(ctx,
		`INSERT INTO `+s.table+` (type, occurred_at, instance, reason, attempt, consecutive_failures, retry_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Type), e.OccurredAt.UTC(), e.Instance, e.Reason,
		uint32(e.Attempt), uint32(e.ConsecutiveFailures), uint32(e.RetryCount),
	)
	if err != nil {
		return fmt.Errorf("insert event into ClickHouse: %w", err)
	}
	return nil
}

// Count returns the number of stored events of type t, or all when t is empty.
func (s *Sink) Count(ctx context.Context, t history.EventType) (uint64, error) {
	var n uint64
	var err error
	if t == "" {
		err = s.conn.QueryRow(ctx, `SELECT count() FROM `+s.table).Scan(&n)
	} else {
		err = s.conn.QueryRow(ctx, `SELECT count() FROM `+s.table+` WHERE type = ?`, string(t)).Scan(&n)
	}
	return n, err
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

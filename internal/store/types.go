package store

import (
	"fmt"
	"strings"
	"time"
)

// Default pool settings for SQL backends.
const (
	DefaultMaxConns       = 20
	DefaultAcquireTimeout = 5 * time.Second
	DefaultKeepAlive      = 10 * time.Second
	DefaultTable          = "blog_posts"
	DefaultRESTTable      = "Blog Posts"
)

// Config represents configuration for the different store types.
type Config struct {
	Type string `mapstructure:"type" json:"type"` // "postgres", "sqlite", "rest", "memory"

	// SQLite specific
	Path string `mapstructure:"path" json:"path,omitempty"`

	// PostgreSQL specific
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	Database string `mapstructure:"name" json:"database,omitempty"`
	Username string `mapstructure:"user" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"-"`
	SSLMode  string `mapstructure:"ssl_mode" json:"ssl_mode,omitempty"`
	DSN      string `mapstructure:"dsn" json:"-"`

	// Connection pooling. Idle connections are never closed by the local side;
	// peer-side drops are detected by probing.
	MaxConns       int           `mapstructure:"max_conns" json:"max_conns,omitempty"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" json:"acquire_timeout,omitempty"`
	KeepAlive      time.Duration `mapstructure:"keepalive" json:"keepalive,omitempty"`

	// REST (hosted Postgres-as-a-service) specific
	URL    string `mapstructure:"url" json:"url,omitempty"`
	APIKey string `mapstructure:"api_key" json:"-"`
	Table  string `mapstructure:"table" json:"table,omitempty"`

	Options map[string]string `mapstructure:"options" json:"options,omitempty"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.Database == "" {
		c.Database = "braindump"
	}
	if c.Username == "" {
		c.Username = "postgres"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	return c
}

// PostgresDSN builds a keyword/value DSN unless DSN is set explicitly.
func (c Config) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSN(c.Host), c.Port, quoteDSN(c.Username), quoteDSN(c.Password), quoteDSN(c.Database), quoteDSN(c.SSLMode))
	for key, value := range c.Options {
		dsn += fmt.Sprintf(" %s=%s", key, quoteDSN(value))
	}
	return dsn
}

// quoteDSN single-quotes a keyword/value DSN value so empty values and
// spaces survive parsing.
func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

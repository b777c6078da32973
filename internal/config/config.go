package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/loykin/braindump/internal/env"
	"github.com/loykin/braindump/internal/logger"
	"github.com/loykin/braindump/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. BRAINDUMP_DATABASE_HOST.
const EnvPrefix = "BRAINDUMP"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	REST       RESTConfig       `mapstructure:"rest"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Health     HealthConfig     `mapstructure:"health"`
	Log        logger.Config    `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	KeepAlive  KeepAliveConfig  `mapstructure:"keepalive"`
	History    HistoryConfig    `mapstructure:"history"`
}

type ServerConfig struct {
	Listen      string    `mapstructure:"listen"`
	Port        int       `mapstructure:"port"`
	BasePath    string    `mapstructure:"base_path"`
	CORSOrigins []string  `mapstructure:"cors_origins"`
	TLS         TLSConfig `mapstructure:"tls"`
}

// TLSConfig enables HTTPS on the API listener. CertFile/KeyFile win over
// Dir; with AutoGenerate a self-signed pair is written to Dir when missing.
type TLSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	MinVersion   string   `mapstructure:"min_version"`
	Hosts        []string `mapstructure:"hosts"`
	ValidDays    int      `mapstructure:"valid_days"`
}

// Addr returns Listen when set, otherwise ":<Port>".
func (s ServerConfig) Addr() string {
	if s.Listen != "" {
		return s.Listen
	}
	return ":" + strconv.Itoa(s.Port)
}

type DatabaseConfig struct {
	store.Config `mapstructure:",squash"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// EnsureSchema creates blog_posts on startup for SQL backends.
	EnsureSchema bool `mapstructure:"ensure_schema"`
}

type RESTConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Table  string `mapstructure:"table"`
}

type ResilienceConfig struct {
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
}

type HealthConfig struct {
	MemoryThresholdMB float64 `mapstructure:"memory_threshold_mb"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type KeepAliveConfig struct {
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// HistoryConfig exports connection events to the sinks named by DSN
// (sqlite path, postgres://, clickhouse://, opensearch://).
type HistoryConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Sinks    []string `mapstructure:"sinks"`
	Buffer   int      `mapstructure:"buffer"`
	Instance string   `mapstructure:"instance"`
}

// StoreConfig merges the rest section into the database store config.
func (c *Config) StoreConfig() store.Config {
	sc := c.Database.Config
	if sc.URL == "" {
		sc.URL = c.REST.URL
	}
	if sc.APIKey == "" {
		sc.APIKey = c.REST.APIKey
	}
	if sc.Table == "" && strings.EqualFold(sc.Type, "rest") {
		sc.Table = c.REST.Table
	}
	return sc
}

// RESTStoreConfig describes the hosted REST source used by migrate.
func (c *Config) RESTStoreConfig() store.Config {
	return store.Config{
		Type:           "rest",
		URL:            c.REST.URL,
		APIKey:         c.REST.APIKey,
		Table:          c.REST.Table,
		AcquireTimeout: c.Database.AcquireTimeout,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "")
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "1.2")
	v.SetDefault("server.tls.hosts", []string{"localhost", "127.0.0.1"})
	v.SetDefault("server.tls.valid_days", 365)

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "braindump")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.api_key", "")
	v.SetDefault("database.table", "")
	v.SetDefault("database.max_conns", store.DefaultMaxConns)
	v.SetDefault("database.acquire_timeout", store.DefaultAcquireTimeout)
	v.SetDefault("database.keepalive", store.DefaultKeepAlive)
	v.SetDefault("database.probe_timeout", 5*time.Second)
	v.SetDefault("database.ensure_schema", true)

	v.SetDefault("rest.url", "")
	v.SetDefault("rest.api_key", "")
	v.SetDefault("rest.table", store.DefaultRESTTable)

	v.SetDefault("resilience.probe_interval", 10*time.Second)
	v.SetDefault("resilience.failure_threshold", 3)
	v.SetDefault("resilience.max_attempts", 10)
	v.SetDefault("resilience.base_delay", time.Second)
	v.SetDefault("resilience.max_delay", 60*time.Second)

	v.SetDefault("health.memory_threshold_mb", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("keepalive.url", "http://localhost:8001/health")
	v.SetDefault("keepalive.interval", 60*time.Second)
	v.SetDefault("keepalive.timeout", 10*time.Second)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("history.buffer", 256)
	v.SetDefault("history.instance", "")
}

// legacyEnv lists the unprefixed variable names accepted for compatibility
// with existing deployments. The prefixed name always wins.
var legacyEnv = map[string]string{
	"server.port":       "PORT",
	"database.user":     "DB_USER",
	"database.host":     "DB_HOST",
	"database.name":     "DB_NAME",
	"database.password": "DB_PASSWORD",
	"database.port":     "DB_PORT",
	"rest.url":          "SUPABASE_URL",
	"rest.api_key":      "SUPABASE_ANON_KEY",
	"keepalive.url":     "HEALTH_URL",
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from defaults, an optional file and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.expandPlaceholders(env.New().FromOS())
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// expandPlaceholders resolves ${NAME} in values that commonly embed secrets
// or paths, e.g. dsn: postgres://app:${DB_PASSWORD}@db/braindump.
func (c *Config) expandPlaceholders(e *env.Env) {
	e.ExpandAll(
		&c.Database.DSN, &c.Database.Password, &c.Database.Path, &c.Database.Host,
		&c.REST.URL, &c.REST.APIKey,
		&c.KeepAlive.URL, &c.Log.File,
		&c.Server.TLS.CertFile, &c.Server.TLS.KeyFile, &c.Server.TLS.Dir,
	)
	for i := range c.History.Sinks {
		e.ExpandAll(&c.History.Sinks[i])
	}
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Type) {
	case "postgres", "postgresql", "sqlite", "rest", "memory":
	default:
		return fmt.Errorf("database.type: unsupported %q", c.Database.Type)
	}
	if strings.EqualFold(c.Database.Type, "sqlite") && c.Database.Path == "" {
		return errors.New("database.path is required for sqlite")
	}
	if strings.EqualFold(c.Database.Type, "rest") && c.StoreConfig().URL == "" {
		return errors.New("rest.url is required for the rest database type")
	}
	if c.Server.Listen == "" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port: out of range %d", c.Server.Port)
	}
	positive := map[string]time.Duration{
		"database.acquire_timeout":  c.Database.AcquireTimeout,
		"database.probe_timeout":    c.Database.ProbeTimeout,
		"resilience.probe_interval": c.Resilience.ProbeInterval,
		"resilience.base_delay":     c.Resilience.BaseDelay,
		"resilience.max_delay":      c.Resilience.MaxDelay,
		"keepalive.interval":        c.KeepAlive.Interval,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Resilience.MaxDelay < c.Resilience.BaseDelay {
		return errors.New("resilience.max_delay must not be below base_delay")
	}
	if c.Resilience.FailureThreshold <= 0 || c.Resilience.MaxAttempts <= 0 {
		return errors.New("resilience.failure_threshold and max_attempts must be positive")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be positive")
	}
	if c.Health.MemoryThresholdMB <= 0 {
		return errors.New("health.memory_threshold_mb must be positive")
	}
	if t := c.Server.TLS; t.Enabled && t.Dir == "" && (t.CertFile == "" || t.KeyFile == "") {
		return errors.New("server.tls: set cert_file and key_file, or dir")
	}
	for _, o := range c.Server.CORSOrigins {
		o = strings.TrimSpace(o)
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("server.cors_origins: %q must be \"*\" or start with http:// or https://", o)
		}
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		return errors.New("history.sinks is required when history is enabled")
	}
	if c.History.Buffer < 0 {
		return errors.New("history.buffer must not be negative")
	}
	return nil
}

// Package postgres implements the Store Adapter contract (internal/store)
// over PostgreSQL: entity rows are kept as JSONB in a single `entities`
// table, and "views" (the lifecycle names executors assign, e.g.
// `<output>_local`) are materialized as real `CREATE VIEW` statements
// recorded in a bookkeeping table, so RemoveView/RenameView/Columns/Types
// stay simple catalog operations.
//
// Grounded on internal/storage/types.go's Connection/NewConnection and
// internal/storage/config.go's Config from the teacher repo: same
// lib/pq-backed connection pool shape and environment-variable defaults,
// generalized from lineage-event storage to STIX entity storage.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"database/sql"

	"github.com/raymundl/kestrel-lang/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	postgresDriver         = "postgres"
	ctxTimeout             = 5 * time.Second
)

// ErrDatabaseURLEmpty is returned when the database URL is an empty string.
var ErrDatabaseURLEmpty = errors.New("kestrel: database URL cannot be empty")

// Config holds PostgreSQL connection configuration with production-ready
// defaults, loaded from environment variables.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig loads PostgreSQL configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("KESTREL_DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("KESTREL_DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("KESTREL_DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("KESTREL_DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("KESTREL_DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate checks that the PostgreSQL configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns a masked databaseURL safe for logging.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(c.databaseURL, "://")
	if schemeEnd == -1 {
		return c.databaseURL
	}

	afterScheme := c.databaseURL[schemeEnd+3:]

	lastAt := strings.LastIndex(afterScheme, "@")
	if lastAt == -1 {
		return c.databaseURL
	}

	userInfo := afterScheme[:lastAt]

	colon := strings.Index(userInfo, ":")
	if colon == -1 {
		return c.databaseURL
	}

	username := userInfo[:colon]
	if userInfo[colon+1:] == "" {
		return c.databaseURL
	}

	return c.databaseURL[:schemeEnd] + "://" + username + ":***" + afterScheme[lastAt:]
}

// Connection wraps a pooled database handle.
type Connection struct {
	*sql.DB
}

// NewConnection opens and health-checks a PostgreSQL connection pool.
func NewConnection(cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(postgresDriver, cfg.databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("postgres: database health check failed: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck pings the database with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), ctxTimeout)
		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// quoteIdent double-quotes a Postgres identifier, escaping embedded quotes,
// so generated view names (which are deterministic DSL-derived strings, see
// spec.md §5 "Shared-resource policy") can never break out of the
// identifier position even though they aren't attacker-controlled.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// viewTableName returns the physical view name derived from the logical
// view name: view names are already unique per spec.md §5, this just keeps
// the identifier free of characters Postgres disallows unquoted.
func viewTableName(view string) string {
	return "kv_" + sanitizeIdent(view)
}

func sanitizeIdent(s string) string {
	var b strings.Builder

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

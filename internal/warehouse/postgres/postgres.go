// Package postgres uses a PostgreSQL database as a local grievance warehouse.
// Records are kept as JSONB documents next to their ingestion columns.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openaviation/grievance-insights/internal/common/constants"
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Manager manages the PostgreSQL connection pool shared by the sink and the dashboard queries.
type Manager struct {
	dbpool dbPool
	table  string
	log    *slog.Logger
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
	table   string
	logger  *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithTable sets the table read by the dashboard queries.
func WithTable(table string) Options {
	return func(o *options) {
		o.table = table
	}
}

// WithLogger sets the logger used by the manager.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a manager with a PostgreSQL connection pool using the provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func New(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
		table:  constants.DefaultDatasetName,
		logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	opts.logger.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	opts.logger.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool, table: opts.table, log: opts.logger}, nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (db *Manager) Close() error {
	if db.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.dbpool.Close()
	}()

	select {
	case <-done:
		db.dbpool = nil
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// URI is a helper method that returns a connection URI for PostgreSQL.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (db *Manager) pool() (dbPool, error) {
	if db.dbpool == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return db.dbpool, nil
}

// execer is satisfied by pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ensureTable creates table with the warehouse layout when it does not exist yet.
func ensureTable(ctx context.Context, tx execer, table string) error {
	ident := pgx.Identifier{table}.Sanitize()
	index := pgx.Identifier{table + "_inserted_date_idx"}.Sanitize()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		record JSONB NOT NULL,
		updated_at TEXT,
		inserted_at TIMESTAMP NOT NULL,
		inserted_date DATE NOT NULL
	)`, ident)); err != nil {
		return fmt.Errorf("failed to create table %s: %v", table, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (inserted_date)`, index, ident)); err != nil {
		return fmt.Errorf("failed to index table %s: %v", table, err)
	}
	return nil
}

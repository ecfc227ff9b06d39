package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // embedded SQLite driver
)

// DB wraps the database connection and provides health checks
type DB struct {
	conn   *sqlx.DB
	driver string
}

// DBConfig holds database configuration
type DBConfig struct {
	// URL is postgres://... for PostgreSQL or sqlite://path, sqlite::memory: for SQLite.
	URL string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		URL:             "sqlite://gateway.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// parseURL maps a database URL to a driver name and DSN.
func parseURL(url string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres", url, nil
	case url == "sqlite::memory:":
		return "sqlite", ":memory:", nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDatabase)
		}
		return "sqlite", path, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDatabase, url)
}

// NewDB opens the database and applies the pool settings
func NewDB(cfg DBConfig) (*DB, error) {
	driver, dsn, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dsn == ":memory:" {
		// Every new connection would see a fresh empty database.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
		conn.SetConnMaxIdleTime(0)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return &DB{conn: conn, driver: driver}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// Migrate creates the schema when it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Driver returns the database/sql driver name in use
func (db *DB) Driver() string {
	return db.driver
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
// Use this for custom queries not covered by repositories
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Repository factory methods

// NewProviderRepository creates a new provider repository
func (db *DB) NewProviderRepository(enc *Encryption) *ProviderRepository {
	return NewProviderRepository(db, enc)
}

// NewModelRepository creates a new model repository
func (db *DB) NewModelRepository() *ModelRepository {
	return NewModelRepository(db)
}

// NewUsageRepository creates a new usage repository
func (db *DB) NewUsageRepository() *UsageRepository {
	return NewUsageRepository(db)
}

// NewAlertRepository creates a new cost alert repository
func (db *DB) NewAlertRepository() *AlertRepository {
	return NewAlertRepository(db)
}

// NewHistoryRepository creates a new message history repository
func (db *DB) NewHistoryRepository() *HistoryRepository {
	return NewHistoryRepository(db)
}

// NewBusinessContextRepository creates a new business context repository
func (db *DB) NewBusinessContextRepository(defaultAlertThreshold float64) *BusinessContextRepository {
	return NewBusinessContextRepository(db, defaultAlertThreshold)
}

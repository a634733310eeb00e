// Package database is the local SQLite store: weekend days, the support
// rota and UI preferences.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// DB is the planner's handle on SQLite.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Config tunes the connection pool.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration // zero means 5s
}

// DefaultConfig keeps a single connection: SQLite serialises writers anyway,
// and an in-memory database only exists on the connection that made it.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

// dsn builds the go-sqlite3 connection string: WAL journal, foreign keys on,
// and a busy timeout before "database is locked" is reported.
func (c Config) dsn() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", fmt.Sprint(busy.Milliseconds()))
	return c.Path + "?" + q.Encode()
}

// Open connects to the database at cfg.Path, creating its directory if
// needed, and checks the connection. Call Migrate before use and Close when
// done.
func Open(cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(cfg.Path); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database opened", slog.String("path", cfg.Path))
	return &DB{DB: sqlDB, logger: logger}, nil
}

func ensureDir(path string) error {
	if path == memoryPath {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	db.logger.Debug("closing database")
	return db.DB.Close()
}

// Health reports whether the database answers and the schema is in place.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return fmt.Errorf("database health: %w", err)
	}
	if version == 0 {
		return fmt.Errorf("database health: schema not migrated")
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations must stay in ascending version order. Never edit a released
// step; append a new one.
var migrations = []migration{
	{1, "weekend_days", migrationV1WeekendDays},
	{2, "recurrence_settings", migrationV2Recurrence},
	{3, "preferences", migrationV3Preferences},
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// Migrate brings the schema up to date and returns how many steps it ran.
// All pending steps share one transaction: either the schema moves to the
// latest version or it stays where it was.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	var ran int
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		done, err := appliedVersions(ctx, tx.Tx)
		if err != nil {
			return err
		}

		for _, m := range migrations {
			if done[m.version] {
				continue
			}
			db.logger.Info("applying migration", slog.Int("version", m.version), slog.String("name", m.name))

			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
			ran++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.logger.Info("schema up to date", slog.Int("applied", ran), slog.Int("version", migrations[len(migrations)-1].version))
	return ran, nil
}

func appliedVersions(ctx context.Context, tx *sql.Tx) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

// migrationV1WeekendDays stores one row per weekend day the user touched.
//
// Timestamps are written by the application as RFC 3339 UTC so that the
// remote mirror can compare them when merging.
const migrationV1WeekendDays = `
CREATE TABLE IF NOT EXISTS weekend_days (
    -- Calendar date, YYYY-MM-DD. Always a Saturday or Sunday.
    date TEXT PRIMARY KEY,

    status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'busy')),

    plan TEXT NOT NULL DEFAULT '',

    -- Manual support flag. Rota support is computed, never stored.
    support INTEGER NOT NULL DEFAULT 0 CHECK (support IN (0, 1)),

    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weekend_days_updated
    ON weekend_days(updated_at);
`

// migrationV2Recurrence holds the single support rota row.
const migrationV2Recurrence = `
CREATE TABLE IF NOT EXISTS recurrence_settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    enabled INTEGER NOT NULL DEFAULT 0 CHECK (enabled IN (0, 1)),
    interval_weeks INTEGER NOT NULL DEFAULT 1 CHECK (interval_weeks >= 1),
    anchor_date TEXT,
    updated_at TEXT NOT NULL DEFAULT ''
);

INSERT OR IGNORE INTO recurrence_settings (id, enabled, interval_weeks) VALUES (1, 0, 1);
`

// migrationV3Preferences is a small key/value store for UI preferences.
const migrationV3Preferences = `
CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

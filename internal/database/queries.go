package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// querier is the subset of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// Helper Functions
// =============================================================================

// now is the clock used for timestamps. Replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// stamp is the timestamp written for a change, cut to milliseconds so it
// survives a round trip through the remote mirror unchanged.
func stamp() time.Time {
	return now().UTC().Truncate(time.Millisecond)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp parses a timestamp from SQLite TEXT format.
// Returns the zero time if parsing fails.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}

	// SQLite datetime('now') format (no timezone)
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}

	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// Weekend Day Queries
// =============================================================================

// upsertDay writes a day, creating it if needed. UpdatedAt is stamped with
// the current time unless the caller already set it (mirror pulls keep the
// remote timestamp).
func upsertDay(ctx context.Context, q querier, day *WeekendDay) error {
	if err := day.Validate(); err != nil {
		return err
	}

	ts := stamp()
	if day.UpdatedAt.IsZero() {
		day.UpdatedAt = ts
	}
	if day.CreatedAt.IsZero() {
		day.CreatedAt = ts
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO weekend_days (date, status, plan, support, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			status = excluded.status,
			plan = excluded.plan,
			support = excluded.support,
			updated_at = excluded.updated_at
	`,
		day.Date,
		string(day.Status),
		day.Plan,
		boolToInt(day.Support),
		formatTimestamp(day.CreatedAt),
		formatTimestamp(day.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert day %s: %w", day.Date, err)
	}

	// Keep CreatedAt accurate when the row already existed.
	var created string
	if err := q.QueryRowContext(ctx, "SELECT created_at FROM weekend_days WHERE date = ?", day.Date).Scan(&created); err == nil {
		day.CreatedAt = parseTimestamp(created)
	}

	return nil
}

func getDay(ctx context.Context, q querier, date string) (*WeekendDay, error) {
	row := q.QueryRowContext(ctx, `
		SELECT date, status, plan, support, created_at, updated_at
		FROM weekend_days
		WHERE date = ?
	`, date)

	day, err := scanDay(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query day %s: %w", date, err)
	}
	return day, nil
}

func listDays(ctx context.Context, q querier, from, to string) ([]WeekendDay, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT date, status, plan, support, created_at, updated_at
		FROM weekend_days
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query days %s..%s: %w", from, to, err)
	}
	defer rows.Close()

	var days []WeekendDay
	for rows.Next() {
		day, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan day row: %w", err)
		}
		days = append(days, *day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}

	return days, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDay(s scanner) (*WeekendDay, error) {
	var (
		day                  WeekendDay
		status               string
		support              int
		createdAt, updatedAt string
	)
	if err := s.Scan(&day.Date, &status, &day.Plan, &support, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	day.Status = DayStatus(status)
	day.Support = support == 1
	day.CreatedAt = parseTimestamp(createdAt)
	day.UpdatedAt = parseTimestamp(updatedAt)
	return &day, nil
}

// =============================================================================
// Recurrence Queries
// =============================================================================

func getRecurrence(ctx context.Context, q querier) (*Recurrence, error) {
	var (
		r         Recurrence
		enabled   int
		anchor    sql.NullString
		updatedAt string
	)

	err := q.QueryRowContext(ctx, `
		SELECT enabled, interval_weeks, anchor_date, updated_at
		FROM recurrence_settings
		WHERE id = 1
	`).Scan(&enabled, &r.IntervalWeeks, &anchor, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Recurrence{IntervalWeeks: 1}, nil
		}
		return nil, fmt.Errorf("query recurrence: %w", err)
	}

	r.Enabled = enabled == 1
	r.AnchorDate = anchor.String
	r.UpdatedAt = parseTimestamp(updatedAt)
	return &r, nil
}

// saveRecurrence stores the rota. An interval of 0 is saved as weekly.
func saveRecurrence(ctx context.Context, q querier, r *Recurrence) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.IntervalWeeks < 1 {
		r.IntervalWeeks = 1
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = stamp()
	}

	var anchor sql.NullString
	if r.AnchorDate != "" {
		anchor = sql.NullString{String: r.AnchorDate, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO recurrence_settings (id, enabled, interval_weeks, anchor_date, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			interval_weeks = excluded.interval_weeks,
			anchor_date = excluded.anchor_date,
			updated_at = excluded.updated_at
	`, boolToInt(r.Enabled), r.IntervalWeeks, anchor, formatTimestamp(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save recurrence: %w", err)
	}
	return nil
}

// =============================================================================
// Preference Queries
// =============================================================================

func getPreference(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query preference %s: %w", key, err)
	}
	return value, nil
}

func setPreference(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, formatTimestamp(stamp()))
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func deletePreference(ctx context.Context, q querier, key string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM preferences WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// DB methods
// =============================================================================

// UpsertDay creates or replaces the stored state of a weekend day.
func (db *DB) UpsertDay(ctx context.Context, day *WeekendDay) error {
	return upsertDay(ctx, db.DB, day)
}

// GetDay returns a stored day. Returns ErrNotFound if the day was never set.
func (db *DB) GetDay(ctx context.Context, date string) (*WeekendDay, error) {
	return getDay(ctx, db.DB, date)
}

// ListDays returns stored days between from and to (inclusive, YYYY-MM-DD).
func (db *DB) ListDays(ctx context.Context, from, to string) ([]WeekendDay, error) {
	return listDays(ctx, db.DB, from, to)
}

// ListAllDays returns every stored day.
func (db *DB) ListAllDays(ctx context.Context) ([]WeekendDay, error) {
	return listDays(ctx, db.DB, "0000-01-01", "9999-12-31")
}

// CountDays returns the number of stored days.
func (db *DB) CountDays(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM weekend_days").Scan(&n); err != nil {
		return 0, fmt.Errorf("count days: %w", err)
	}
	return n, nil
}

// GetRecurrence returns the support rota.
func (db *DB) GetRecurrence(ctx context.Context) (*Recurrence, error) {
	return getRecurrence(ctx, db.DB)
}

// SaveRecurrence stores the support rota.
func (db *DB) SaveRecurrence(ctx context.Context, r *Recurrence) error {
	return saveRecurrence(ctx, db.DB, r)
}

// GetPreference returns a preference value or ErrNotFound.
func (db *DB) GetPreference(ctx context.Context, key string) (string, error) {
	return getPreference(ctx, db.DB, key)
}

// SetPreference stores a preference value.
func (db *DB) SetPreference(ctx context.Context, key, value string) error {
	return setPreference(ctx, db.DB, key, value)
}

// DeletePreference removes a preference. Missing keys are not an error.
func (db *DB) DeletePreference(ctx context.Context, key string) error {
	return deletePreference(ctx, db.DB, key)
}

// =============================================================================
// Tx methods
// =============================================================================

// UpsertDay creates or replaces a day within the transaction.
func (tx *Tx) UpsertDay(ctx context.Context, day *WeekendDay) error {
	return upsertDay(ctx, tx.Tx, day)
}

// GetDay returns a stored day within the transaction.
func (tx *Tx) GetDay(ctx context.Context, date string) (*WeekendDay, error) {
	return getDay(ctx, tx.Tx, date)
}

// SaveRecurrence stores the support rota within the transaction.
func (tx *Tx) SaveRecurrence(ctx context.Context, r *Recurrence) error {
	return saveRecurrence(ctx, tx.Tx, r)
}

// SetPreference stores a preference within the transaction.
func (tx *Tx) SetPreference(ctx context.Context, key, value string) error {
	return setPreference(ctx, tx.Tx, key, value)
}

// DeletePreference removes a preference within the transaction.
func (tx *Tx) DeletePreference(ctx context.Context, key string) error {
	return deletePreference(ctx, tx.Tx, key)
}

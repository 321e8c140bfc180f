package fireplace

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryEntry is one recorded property transition.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	Property   string    `json:"property"`
	Value      string    `json:"value"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryRepository persists property transitions to SQLite.
//
// One row is written per observed change, whatever caused it: a poll
// response, an unsolicited push, or a derivation rule.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a history repository over an open database.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordChange inserts one history row for a property change.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - change: The change to persist (value stored in wire format)
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *HistoryRepository) RecordChange(ctx context.Context, change Change) error {
	if change.Property == "" {
		return fmt.Errorf("property is required")
	}

	at := change.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO state_history (property, value, source, recorded_at) VALUES (?, ?, ?, ?)",
		change.Property.Key(),
		change.Value.String(),
		string(change.Source),
		at.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// History returns recent transitions, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - property: Lowercase property key to filter by, or "" for all
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryEntry: Entries ordered by recorded_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *HistoryRepository) History(ctx context.Context, property string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, property, value, source, recorded_at
		 FROM state_history`
	args := []any{}
	if property != "" {
		query += " WHERE property = ?"
		args = append(args, property)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var recordedAt string

		if err := rows.Scan(&entry.ID, &entry.Property, &entry.Value, &entry.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		timestamp, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entry.RecordedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// Prune deletes history entries older than the given retention window.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *HistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

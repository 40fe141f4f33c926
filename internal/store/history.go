package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// HistoryEntry is one recorded value change.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	ObjectID  string    `json:"object_id"`
	Value     any       `json:"value"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordState appends a value change for an object. A value equal to the
// last one recorded for the same object is skipped.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - objectID: Object identifier
//   - value: Current value; nil (no value) is recorded as JSON null
//   - source: Origin of the change; defaults to SourceMQTT
//
// Returns:
//   - bool: true if a row was written
//   - error: Encoding or database failure
func (s *Store) RecordState(ctx context.Context, objectID string, value any, source string) (bool, error) {
	if objectID == "" {
		return false, ErrObjectIDRequired
	}
	if source == "" {
		source = SourceMQTT
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encoding value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last[objectID]; ok && prev == string(encoded) {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO state_history (object_id, value, source, created_at) VALUES (?, ?, ?, ?)",
		objectID, string(encoded), source, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("inserting state history: %w", err)
	}
	s.last[objectID] = string(encoded)
	return true, nil
}

// GetHistory returns recent changes for an object, newest first.
// limit defaults to 50 and is capped at 200.
func (s *Store) GetHistory(ctx context.Context, objectID string, limit int) ([]HistoryEntry, error) {
	if objectID == "" {
		return nil, ErrObjectIDRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, object_id, value, source, created_at
		FROM state_history
		WHERE object_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, objectID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e            HistoryEntry
			value, stamp string
		)
		if err := rows.Scan(&e.ID, &e.ObjectID, &value, &e.Source, &stamp); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(value), &e.Value); err != nil {
			return nil, fmt.Errorf("decoding state history value: %w", err)
		}
		if e.CreatedAt, err = parseTime(stamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes history rows older than olderThan.
//
// Returns:
//   - int64: Rows deleted
//   - error: ErrInvalidRetention or the database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := s.now().UTC().Add(-olderThan).Format(timeLayout)

	result, err := s.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LastSyncAt returns the time of the last successful sync pass, or nil
// if no pass has ever completed.
func (s *Store) LastSyncAt(ctx context.Context) (*time.Time, error) {
	var last sql.NullString
	err := s.conn.QueryRowContext(ctx,
		"SELECT last_sync_at FROM sync_state WHERE id = 1").Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	return nullStringToTime(last), nil
}

// SetLastSyncAt records the completion time of a sync pass.
func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO sync_state (id, last_sync_at) VALUES (1, ?)
	ON CONFLICT(id) DO UPDATE SET last_sync_at = excluded.last_sync_at
	`
	if _, err := s.conn.ExecContext(ctx, query, t.Format(timeFormat)); err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	return nil
}

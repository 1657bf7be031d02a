package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const keyLastChange = "last_change"

// SaveLastChange saves the timestamp of the newest change id issued here
func (s *Storage) SaveLastChange(ctx context.Context, ts time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		keyLastChange, int64(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to save last change: %w", err)
	}
	return nil
}

// GetLastChange retrieves the timestamp saved by SaveLastChange
// Returns 0 if nothing was saved yet
func (s *Storage) GetLastChange(ctx context.Context) (time.Duration, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, keyLastChange).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get last change: %w", err)
	}
	return time.Duration(value), nil
}

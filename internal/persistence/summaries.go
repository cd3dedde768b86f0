package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveSummary replaces the summary text of a session.
func (s *Store) SaveSummary(ctx context.Context, sessionID int64, text string) error {
	return retryOnBusy(ctx, busyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_summary (session_id, summary_text, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(session_id) DO UPDATE SET summary_text = excluded.summary_text, updated_at = CURRENT_TIMESTAMP;
		`, sessionID, text)
		if err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
		return nil
	})
}

// LoadSummary returns the summary text, or "" when none was written yet.
func (s *Store) LoadSummary(ctx context.Context, sessionID int64) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT summary_text FROM session_summary WHERE session_id = ?;`, sessionID).Scan(&text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load summary: %w", err)
	}
	return text, nil
}

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one birth-chart context for one user.
type Session struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Gender      string    `json:"gender"`
	SystemCode  string    `json:"system_code"`
	SystemTitle string    `json:"system_title"`
	BirthDate   string    `json:"birth_date"`
	BirthTime   string    `json:"birth_time,omitempty"` // empty means unknown
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	TZ          string    `json:"tz"`
	Chart       string    `json:"chart,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateSession deactivates the user's previous sessions and inserts a new
// active one in the same transaction.
func (s *Store) CreateSession(ctx context.Context, sess Session) (int64, error) {
	var id int64
	err := retryOnBusy(ctx, busyRetries, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1;`, sess.UserID); err != nil {
			return fmt.Errorf("deactivate sessions: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (user_id, name, gender, system_code, system_title, birth_date, birth_time, lat, lon, tz, chart_json, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP);
		`, sess.UserID, sess.Name, sess.Gender, sess.SystemCode, sess.SystemTitle, sess.BirthDate,
			nullString(sess.BirthTime), sess.Lat, sess.Lon, sess.TZ, nullString(sess.Chart))
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("session id: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// DeactivateSessions marks every session of the user inactive. Rows are kept.
func (s *Store) DeactivateSessions(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1;`, userID)
	if err != nil {
		return fmt.Errorf("deactivate sessions: %w", err)
	}
	return nil
}

func (s *Store) SaveChart(ctx context.Context, sessionID int64, chartJSON string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET chart_json = ? WHERE id = ?;`, nullString(chartJSON), sessionID)
	if err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID int64) (Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?;`, sessionID))
}

// ActiveSession returns the newest active session of the user.
func (s *Store) ActiveSession(ctx context.Context, userID int64) (Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, sessionSelect+`
		WHERE user_id = ? AND is_active = 1 ORDER BY id DESC LIMIT 1;`, userID))
}

const sessionSelect = `
	SELECT id, user_id, name, gender, system_code, system_title, birth_date,
		COALESCE(birth_time, ''), lat, lon, tz, COALESCE(chart_json, ''), is_active, created_at
	FROM sessions`

func scanSession(row *sql.Row) (Session, error) {
	var sess Session
	var active int
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.Gender, &sess.SystemCode, &sess.SystemTitle,
		&sess.BirthDate, &sess.BirthTime, &sess.Lat, &sess.Lon, &sess.TZ, &sess.Chart, &active, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.IsActive = active == 1
	return sess, nil
}

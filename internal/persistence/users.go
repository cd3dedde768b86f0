package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	TGID      int64     `json:"tg_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// EnsureUser returns the user for a chat-platform id, creating it on first
// contact. A non-empty name overwrites the stored one.
func (s *Store) EnsureUser(ctx context.Context, tgID int64, name string) (User, error) {
	name = strings.TrimSpace(name)
	err := retryOnBusy(ctx, busyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (tg_id, name, created_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(tg_id) DO UPDATE SET name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END;
		`, tgID, name)
		return err
	})
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.UserByTGID(ctx, tgID)
}

func (s *Store) UserByTGID(ctx context.Context, tgID int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, tg_id, name, created_at FROM users WHERE tg_id = ?;
	`, tgID))
}

func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, tg_id, name, created_at FROM users WHERE id = ?;
	`, id))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.TGID, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

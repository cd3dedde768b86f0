package persistence

import (
	"context"
	"fmt"
)

// RegisterReferral links an invited user to the inviter. Each user can be
// invited once and never by themselves; the returned bool reports whether a
// new link was stored.
func (s *Store) RegisterReferral(ctx context.Context, inviterID, invitedID int64) (bool, error) {
	if inviterID == invitedID {
		return false, nil
	}
	var inserted bool
	err := retryOnBusy(ctx, busyRetries, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO referrals (inviter_id, invited_id, created_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(invited_id) DO NOTHING;
		`, inviterID, invitedID)
		if err != nil {
			return fmt.Errorf("insert referral: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// CountReferrals counts distinct users invited by the inviter.
func (s *Store) CountReferrals(ctx context.Context, inviterID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT invited_id) FROM referrals WHERE inviter_id = ?;`, inviterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

package readings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/safety"
	"github.com/basket/astrobot/internal/settings"
)

// ErrInvalidInput wraps a rejected profile value.
var ErrInvalidInput = errors.New("invalid input")

// BirthInput is what the onboarding wizard collects. BirthTime is "HH:MM"
// or empty when unknown.
type BirthInput struct {
	Name        string
	Gender      string
	SystemCode  string
	SystemTitle string
	BirthDate   string
	BirthTime   string
	Lat         float64
	Lon         float64
	TZ          string
}

// ChartOracle computes the astrological chart for a birth input.
type ChartOracle interface {
	Compute(ctx context.Context, in BirthInput) (map[string]any, error)
}

// CompleteOnboarding replaces the user's active session with one built from
// in, stores its chart and writes the first summary. A chart failure leaves
// the session without a chart.
func (s *Service) CompleteOnboarding(ctx context.Context, userID int64, in BirthInput) (persistence.Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	guard := safety.NewInputGuard(settings.Int(ctx, s.db, settings.KeyMaxInputLength, safety.DefaultMaxInputLength))
	if res := guard.Check(in.Name); res.Action == safety.ActionBlock {
		s.logger.Info("profile name rejected", "user_id", userID, "reason", res.Reason)
		return persistence.Session{}, fmt.Errorf("%w: name %s", ErrInvalidInput, res.Reason)
	}
	if strings.TrimSpace(in.BirthDate) == "" {
		return persistence.Session{}, fmt.Errorf("%w: birth date is required", ErrInvalidInput)
	}
	if in.SystemTitle == "" {
		in.SystemTitle = in.SystemCode
	}

	sid, err := s.db.CreateSession(ctx, persistence.Session{
		UserID:      userID,
		Name:        in.Name,
		Gender:      in.Gender,
		SystemCode:  in.SystemCode,
		SystemTitle: in.SystemTitle,
		BirthDate:   in.BirthDate,
		BirthTime:   in.BirthTime,
		Lat:         in.Lat,
		Lon:         in.Lon,
		TZ:          in.TZ,
	})
	if err != nil {
		return persistence.Session{}, fmt.Errorf("create session: %w", err)
	}

	if s.oracle != nil {
		if chart, err := s.oracle.Compute(ctx, in); err != nil {
			s.logger.Warn("chart computation failed", "session_id", sid, "system", in.SystemCode, "error", err)
		} else if b, err := json.Marshal(chart); err != nil {
			s.logger.Warn("chart encoding failed", "session_id", sid, "error", err)
		} else if err := s.db.SaveChart(ctx, sid, string(b)); err != nil {
			s.logger.Warn("save chart failed", "session_id", sid, "error", err)
		}
	}

	if _, err := s.facts.Rebuilder().Rebuild(ctx, sid); err != nil {
		s.logger.Warn("initial summary failed", "session_id", sid, "error", err)
	}
	s.logger.Info("onboarding completed", "user_id", userID, "session_id", sid, "system", in.SystemCode)
	return s.db.GetSession(ctx, sid)
}

// Reset deactivates every session of the user. History rows are kept.
func (s *Service) Reset(ctx context.Context, userID int64) error {
	return s.db.DeactivateSessions(ctx, userID)
}

package readings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/basket/astrobot/internal/gate"
	"github.com/basket/astrobot/internal/persistence"
)

const refPrefix = "ref"

// Invite is the data behind the "invite a friend" screen.
type Invite struct {
	Enabled   bool
	Link      string
	Count     int
	Threshold int
}

// InviteStatus returns the user's invite link and progress.
func (s *Service) InviteStatus(ctx context.Context, user gate.User) Invite {
	cfg := s.gate.Config(ctx)
	inv := Invite{
		Enabled:   cfg.ReferralEnabled,
		Link:      InviteLink(s.botUsername, user.TGID),
		Threshold: cfg.Threshold,
	}
	if user.ID > 0 {
		n, err := s.db.CountReferrals(ctx, user.ID)
		if err != nil {
			s.logger.Warn("referral count failed", "user_id", user.ID, "error", err)
		}
		inv.Count = n
	}
	return inv
}

// InviteLink builds the deep link carrying the inviter's chat id. Empty
// when the bot username is unknown.
func InviteLink(bot string, tgID int64) string {
	bot = strings.TrimPrefix(strings.TrimSpace(bot), "@")
	if bot == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%s%d", bot, refPrefix, tgID)
}

// ParseRefCode accepts "ref<tgid>" or a bare "<tgid>".
func ParseRefCode(payload string) (int64, bool) {
	p := strings.TrimPrefix(strings.TrimSpace(payload), refPrefix)
	if p == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(p, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Start registers the user on first contact and credits the inviter named
// in the deep-link payload. referred is true when a new referral was stored.
func (s *Service) Start(ctx context.Context, tgID int64, name, payload string) (user persistence.User, referred bool, err error) {
	user, err = s.db.EnsureUser(ctx, tgID, name)
	if err != nil {
		return persistence.User{}, false, err
	}
	inviterTG, ok := ParseRefCode(payload)
	if !ok || inviterTG == tgID {
		return user, false, nil
	}
	inviter, err := s.db.UserByTGID(ctx, inviterTG)
	if err != nil {
		s.logger.Info("unknown inviter in start payload", "inviter_tg_id", inviterTG, "error", err)
		return user, false, nil
	}
	referred, err = s.db.RegisterReferral(ctx, inviter.ID, user.ID)
	if err != nil {
		s.logger.Warn("register referral failed", "inviter_id", inviter.ID, "invited_id", user.ID, "error", err)
		return user, false, nil
	}
	if referred {
		s.logger.Info("referral registered", "inviter_id", inviter.ID, "invited_id", user.ID)
	}
	return user, referred, nil
}

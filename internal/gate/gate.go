// Package gate decides whether a bonus scenario is locked behind a channel
// subscription or a referral threshold.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/basket/astrobot/internal/jsonval"
	"github.com/basket/astrobot/internal/otel"
	"github.com/basket/astrobot/internal/settings"
)

// Gate modes as written in the bonus_sections setting.
const (
	ModeChannel   = "channel"
	ModeReferral  = "referral"
	ModeReferrals = "referrals"
)

// DefaultThreshold applies when referral_bonus_threshold is unset, invalid
// or not positive.
const DefaultThreshold = 3

// User identifies the person being gated: ID is the internal user id used
// for referral counts, TGID the chat-platform id used for membership.
type User struct {
	ID   int64
	TGID int64
}

// MembershipChecker reports whether a user belongs to a channel. Channel is
// an @handle or a numeric id.
type MembershipChecker interface {
	IsMember(ctx context.Context, channel string, userTGID int64) (bool, error)
}

// ReferralCounter is satisfied by persistence.Store.
type ReferralCounter interface {
	CountReferrals(ctx context.Context, inviterID int64) (int, error)
}

// Config is the gate configuration read from admin settings.
type Config struct {
	Sections        map[string]string
	ChannelEnabled  bool
	ReferralEnabled bool
	Threshold       int
	ChannelID       string
	ChannelURL      string
}

type ChannelDecision struct {
	Blocked bool
	// Link is where the user can subscribe. Empty when the channel is only
	// known by numeric id.
	Link string
}

type ReferralDecision struct {
	Blocked   bool
	Count     int
	Threshold int
}

type Gate struct {
	settings  settings.Reader
	members   MembershipChecker
	referrals ReferralCounter
	metrics   *otel.Metrics
	logger    *slog.Logger
}

func New(s settings.Reader, members MembershipChecker, referrals ReferralCounter, metrics *otel.Metrics, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = otel.MustNoopMetrics()
	}
	return &Gate{
		settings:  s,
		members:   members,
		referrals: referrals,
		metrics:   metrics,
		logger:    logger.With("component", "gate"),
	}
}

// Config reads the current settings. Malformed values fall back to
// unlocked sections and the default threshold.
func (g *Gate) Config(ctx context.Context) Config {
	return Config{
		Sections:        ParseSections(settings.String(ctx, g.settings, settings.KeyBonusSections, "{}")),
		ChannelEnabled:  settings.Bool(ctx, g.settings, settings.KeyEnableChannelGate, false),
		ReferralEnabled: settings.Bool(ctx, g.settings, settings.KeyEnableReferrals, false),
		Threshold:       ParseThreshold(settings.String(ctx, g.settings, settings.KeyReferralBonusThreshold, "")),
		ChannelID:       unquote(settings.String(ctx, g.settings, settings.KeyTelegramChannelID, "")),
		ChannelURL:      unquote(settings.String(ctx, g.settings, settings.KeyTelegramChannelURL, "")),
	}
}

// Channel checks the subscription gate for code.
func (g *Gate) Channel(ctx context.Context, userTGID int64, code string) ChannelDecision {
	return g.channel(ctx, g.Config(ctx), userTGID, code)
}

func (g *Gate) channel(ctx context.Context, cfg Config, userTGID int64, code string) ChannelDecision {
	if !cfg.ChannelEnabled || cfg.Sections[code] != ModeChannel {
		return ChannelDecision{}
	}
	if cfg.ChannelID != "" && g.isMember(ctx, cfg.ChannelID, userTGID) {
		return ChannelDecision{}
	}
	otel.Count(ctx, g.metrics.GateBlocks, otel.AttrGate, ModeChannel)
	return ChannelDecision{Blocked: true, Link: ChannelLink(cfg.ChannelID, cfg.ChannelURL)}
}

// Referral checks the invite-count gate for code.
func (g *Gate) Referral(ctx context.Context, user User, code string) ReferralDecision {
	return g.referral(ctx, g.Config(ctx), user, code)
}

func (g *Gate) referral(ctx context.Context, cfg Config, user User, code string) ReferralDecision {
	mode := cfg.Sections[code]
	if !cfg.ReferralEnabled || (mode != ModeReferral && mode != ModeReferrals) {
		return ReferralDecision{}
	}
	count := 0
	if user.ID > 0 && g.referrals != nil {
		n, err := g.referrals.CountReferrals(ctx, user.ID)
		if err != nil {
			g.logger.Warn("referral count failed", "user_id", user.ID, "error", err)
		} else {
			count = n
		}
	}
	d := ReferralDecision{Blocked: count < cfg.Threshold, Count: count, Threshold: cfg.Threshold}
	if d.Blocked {
		otel.Count(ctx, g.metrics.GateBlocks, otel.AttrGate, ModeReferral)
	}
	return d
}

// Locks returns, for every code listed in bonus_sections with a known mode,
// whether it is currently locked for user. Unlisted codes are absent.
func (g *Gate) Locks(ctx context.Context, user User) map[string]bool {
	cfg := g.Config(ctx)
	codes := make([]string, 0, len(cfg.Sections))
	for code := range cfg.Sections {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var mu sync.Mutex
	locks := make(map[string]bool, len(codes))
	var eg errgroup.Group
	eg.SetLimit(4)
	for _, code := range codes {
		var check func() bool
		switch cfg.Sections[code] {
		case ModeChannel:
			check = func() bool { return g.channel(ctx, cfg, user.TGID, code).Blocked }
		case ModeReferral, ModeReferrals:
			check = func() bool { return g.referral(ctx, cfg, user, code).Blocked }
		default:
			continue
		}
		eg.Go(func() error {
			locked := check()
			mu.Lock()
			locks[code] = locked
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return locks
}

func (g *Gate) isMember(ctx context.Context, channel string, userTGID int64) bool {
	if g.members == nil {
		return false
	}
	ok, err := g.members.IsMember(ctx, channel, userTGID)
	if err != nil {
		g.logger.Warn("membership check failed", "channel", channel, "user_tg_id", userTGID, "error", err)
		return false
	}
	return ok
}

// ParseSections decodes bonus_sections, a JSON object (possibly serialized
// twice) mapping scenario codes to modes. Non-string modes are dropped.
func ParseSections(raw string) map[string]string {
	out := make(map[string]string)
	for code, v := range jsonval.NormalizeObject(raw) {
		mode, ok := v.(string)
		if !ok {
			continue
		}
		mode = strings.ToLower(strings.TrimSpace(mode))
		if mode != "" {
			out[strings.TrimSpace(code)] = mode
		}
	}
	return out
}

// ParseThreshold returns the configured threshold or DefaultThreshold.
func ParseThreshold(raw string) int {
	n, err := strconv.Atoi(unquote(raw))
	if err != nil || n <= 0 {
		return DefaultThreshold
	}
	return n
}

// ChannelLink prefers the explicit URL and otherwise derives one from an
// @handle.
func ChannelLink(channelID, url string) string {
	if url != "" {
		return url
	}
	if strings.HasPrefix(channelID, "@") && len(channelID) > 1 {
		return fmt.Sprintf("https://t.me/%s", strings.TrimPrefix(channelID, "@"))
	}
	return ""
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

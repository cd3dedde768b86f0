// Package settings names the admin-editable keys and parses their values.
// Values are read fresh on every call so admin edits apply on the next turn.
package settings

import (
	"context"
	"strconv"
	"strings"
)

const (
	KeyGreetingText           = "greeting_text"
	KeySystemPrompt           = "system_prompt"
	KeyEnableReferrals        = "enable_referrals"
	KeyReferralBonusThreshold = "referral_bonus_threshold"
	KeyEnableChannelGate      = "enable_channel_gate"
	KeyTelegramChannelID      = "telegram_channel_id"
	KeyTelegramChannelURL     = "telegram_channel_url"
	KeyBonusSections          = "bonus_sections"
	KeyStrictJSON             = "strict_json"
	KeyMaxInputLength         = "max_input_length"
)

const DefaultGreeting = "Hi! I build personal readings from your birth chart. Tap Start to enter your birth data."

// Reader is satisfied by persistence.Store.
type Reader interface {
	Setting(ctx context.Context, key string) (string, bool, error)
}

// Seeder writes a key only when it is absent.
type Seeder interface {
	SeedSetting(ctx context.Context, key, val string) error
}

// Defaults are seeded on first start. Admin edits are never overwritten.
func Defaults() map[string]string {
	return map[string]string{
		KeyGreetingText:           DefaultGreeting,
		KeySystemPrompt:           "",
		KeyEnableReferrals:        "false",
		KeyReferralBonusThreshold: "3",
		KeyEnableChannelGate:      "false",
		KeyTelegramChannelID:      "",
		KeyTelegramChannelURL:     "",
		KeyBonusSections:          "{}",
		KeyStrictJSON:             "true",
		KeyMaxInputLength:         "80",
	}
}

// Seed writes Defaults overlaid with overrides, insert-if-absent.
func Seed(ctx context.Context, s Seeder, overrides map[string]string) error {
	vals := Defaults()
	for k, v := range overrides {
		vals[k] = v
	}
	for k, v := range vals {
		if err := s.SeedSetting(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// String returns the trimmed value or def when unset, blank or unreadable.
func String(ctx context.Context, r Reader, key, def string) string {
	if r == nil {
		return def
	}
	v, ok, err := r.Setting(ctx, key)
	if err != nil || !ok {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

// Bool accepts 1/true/yes/on (any case) as true. Unset yields def.
func Bool(ctx context.Context, r Reader, key string, def bool) bool {
	v := String(ctx, r, key, "")
	if v == "" {
		return def
	}
	return ParseBool(v)
}

func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Int returns def when the value is unset or not an integer.
func Int(ctx context.Context, r Reader, key string, def int) int {
	v := String(ctx, r, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

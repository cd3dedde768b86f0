package readings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/basket/astrobot/internal/gate"
	"github.com/basket/astrobot/internal/regen"
)

// YearCode is the scenario served through the regeneration policy.
const YearCode = "year"

const (
	maxPreviewItems = 10
	maxPreviewJSON  = 1000
)

type ScreenKind int

const (
	ScreenContent ScreenKind = iota
	ScreenChannelGate
	ScreenReferralGate
	ScreenNoSession
)

func (k ScreenKind) String() string {
	switch k {
	case ScreenContent:
		return "content"
	case ScreenChannelGate:
		return "channel_gate"
	case ScreenReferralGate:
		return "referral_gate"
	case ScreenNoSession:
		return "no_session"
	default:
		return fmt.Sprintf("screen(%d)", int(k))
	}
}

// Screen is what the chat layer renders for one scenario request.
type Screen struct {
	Kind      ScreenKind
	Code      string
	Title     string
	SessionID int64
	// Text is the rendered body for ScreenContent.
	Text string
	Data map[string]any
	// Cached is true when the body came from the projection without a
	// generation.
	Cached      bool
	Regenerated bool
	// Link is the subscribe link for ScreenChannelGate, possibly empty.
	Link     string
	Referral gate.ReferralDecision
}

type MenuItem struct {
	Code   string
	Title  string
	Locked bool
}

// Open serves a scenario: channel gate, then referral gate, then the cached
// reading or a fresh generation. Year text goes through the regeneration
// policy. A zero sessionID means the user's active session.
func (s *Service) Open(ctx context.Context, user gate.User, sessionID int64, code string) (Screen, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	scr := Screen{Code: code, Title: s.catalog.Title(ctx, code)}
	if blocked, gated := s.gated(ctx, user, scr); blocked {
		return gated, nil
	}

	sid, err := s.resolveSession(ctx, user, sessionID)
	if errors.Is(err, ErrNoSession) {
		scr.Kind = ScreenNoSession
		return scr, nil
	}
	if err != nil {
		return Screen{}, err
	}
	scr.SessionID = sid

	if code == YearCode {
		if _, err := s.session(ctx, sid); err != nil {
			return s.noSession(scr, err)
		}
		text, err := s.refresher.Ensure(ctx, sid, code)
		if err != nil {
			return Screen{}, err
		}
		scr.Text = text
		scr.Data = map[string]any{"text": text}
		return scr, nil
	}

	f, err := s.facts.Read(ctx, sid)
	if err != nil {
		return Screen{}, err
	}
	if cached, ok := f.Value(code); ok && !emptyValue(cached) {
		scr.Cached = true
		scr.Data = cached
		scr.Text = Preview(cached, code)
		return scr, nil
	}

	data, err := s.RunScenario(ctx, sid, code)
	if err != nil {
		return s.noSession(scr, err)
	}
	return s.fill(ctx, scr, data)
}

// Regenerate re-runs a scenario after passing the gates again, ignoring
// the cache.
func (s *Service) Regenerate(ctx context.Context, user gate.User, sessionID int64, code string) (Screen, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	scr := Screen{Code: code, Title: s.catalog.Title(ctx, code), Regenerated: true}
	if blocked, gated := s.gated(ctx, user, scr); blocked {
		return gated, nil
	}
	sid, err := s.resolveSession(ctx, user, sessionID)
	if errors.Is(err, ErrNoSession) {
		scr.Kind = ScreenNoSession
		return scr, nil
	}
	if err != nil {
		return Screen{}, err
	}
	scr.SessionID = sid

	data, err := s.RunScenario(ctx, sid, code)
	if err != nil {
		return s.noSession(scr, err)
	}
	return s.fill(ctx, scr, data)
}

// RecheckChannel is the "I subscribed" callback: the scenario opens only
// once the channel gate passes.
func (s *Service) RecheckChannel(ctx context.Context, user gate.User, sessionID int64, code string) (Screen, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if d := s.gate.Channel(ctx, user.TGID, code); d.Blocked {
		return Screen{Kind: ScreenChannelGate, Code: code, Title: s.catalog.Title(ctx, code), Link: d.Link}, nil
	}
	return s.Open(ctx, user, sessionID, code)
}

// fill renders a generation result. An empty result falls back to the
// cached reading, or to the unavailable sentence when there is none.
func (s *Service) fill(ctx context.Context, scr Screen, data map[string]any) (Screen, error) {
	if !emptyValue(data) {
		scr.Data = data
		scr.Text = Preview(data, scr.Code)
		return scr, nil
	}
	f, err := s.facts.Read(ctx, scr.SessionID)
	if err != nil {
		return Screen{}, err
	}
	if cached, ok := f.Value(scr.Code); ok && !emptyValue(cached) {
		scr.Cached = true
		scr.Data = cached
		scr.Text = Preview(cached, scr.Code)
		return scr, nil
	}
	scr.Data = map[string]any{}
	scr.Text = regen.Unavailable
	return scr, nil
}

func (s *Service) gated(ctx context.Context, user gate.User, scr Screen) (bool, Screen) {
	if d := s.gate.Channel(ctx, user.TGID, scr.Code); d.Blocked {
		scr.Kind = ScreenChannelGate
		scr.Link = d.Link
		return true, scr
	}
	if d := s.gate.Referral(ctx, user, scr.Code); d.Blocked {
		scr.Kind = ScreenReferralGate
		scr.Referral = d
		return true, scr
	}
	return false, scr
}

func (s *Service) noSession(scr Screen, err error) (Screen, error) {
	if errors.Is(err, ErrNoSession) {
		scr.Kind = ScreenNoSession
		scr.SessionID = 0
		return scr, nil
	}
	return Screen{}, err
}

// Preview renders a payload for chat: bullets for an items list, else the
// first non-empty text field, else compact JSON.
func Preview(data map[string]any, code string) string {
	if items, ok := data["items"].([]any); ok {
		var b strings.Builder
		for i, it := range items {
			if i == maxPreviewItems {
				break
			}
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("• ")
			b.WriteString(fmt.Sprint(it))
		}
		if b.Len() == 0 {
			return "—"
		}
		return b.String()
	}
	for _, k := range []string{code, "text", "mission", "love", "finance", "karma", YearCode} {
		if v, ok := data[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return truncateRunes(fmt.Sprint(data), maxPreviewJSON)
	}
	return truncateRunes(string(b), maxPreviewJSON)
}

// Unavailable reports whether a screen body is the fixed fallback sentence.
func (scr Screen) Unavailable() bool {
	return scr.Text == regen.Unavailable
}

func emptyValue(m map[string]any) bool {
	if len(m) == 0 {
		return true
	}
	if items, ok := m["items"].([]any); ok {
		return len(items) == 0
	}
	if t, ok := m["text"].(string); ok && len(m) == 1 {
		return strings.TrimSpace(t) == ""
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

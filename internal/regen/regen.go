// Package regen decides when cached long-form text is too poor to serve and
// drives its regeneration.
package regen

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/basket/astrobot/internal/facts"
	"github.com/basket/astrobot/internal/jsonval"
)

// MinLength is the shortest text, in characters, served without regeneration.
const MinLength = 40

// Unavailable is shown when regeneration keeps producing unusable text. It
// is never stored.
const Unavailable = "This report is unavailable right now. Please try again later."

var bareYear = regexp.MustCompile(`^\s*(19|20)\d{2}\s*$`)

// NeedsRegen reports whether text is empty, a bare four-digit year, or
// shorter than MinLength characters.
func NeedsRegen(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if bareYear.MatchString(t) {
		return true
	}
	return utf8.RuneCountInString(t) < MinLength
}

type Generator interface {
	Generate(ctx context.Context, sessionID int64, code string) (map[string]any, error)
}

// FactStore is satisfied by *facts.Store.
type FactStore interface {
	Read(ctx context.Context, sessionID int64) (facts.Fact, error)
	Clear(ctx context.Context, sessionID int64, code string) error
	Record(ctx context.Context, sessionID int64, code string, content any, makeActive bool) (facts.Fact, error)
}

// Refresher serves a text slot, regenerating it when the cached value
// fails NeedsRegen.
type Refresher struct {
	gen    Generator
	facts  FactStore
	logger *slog.Logger
}

func NewRefresher(gen Generator, store FactStore, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{gen: gen, facts: store, logger: logger.With("component", "regen")}
}

// Ensure returns usable text for (session, code). A stale cache is cleared
// before generating; a stale result gets one more attempt, after which
// Unavailable is returned. The only error is a misconfigured scenario or an
// unreadable store.
func (r *Refresher) Ensure(ctx context.Context, sessionID int64, code string) (string, error) {
	f, err := r.facts.Read(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("read cached %s: %w", code, err)
	}
	cached := jsonval.Text(f.Text(code), code)
	if !NeedsRegen(cached) {
		return cached, nil
	}

	if err := r.facts.Clear(ctx, sessionID, code); err != nil {
		r.logger.Warn("clear stale slot failed", "session_id", sessionID, "scenario", code, "error", err)
	}

	var data map[string]any
	text := ""
	for try := 1; try <= 2; try++ {
		data, err = r.gen.Generate(ctx, sessionID, code)
		if err != nil {
			return "", err
		}
		text = jsonval.Text(data, code)
		if !NeedsRegen(text) {
			break
		}
		r.logger.Info("regenerated text still unusable", "session_id", sessionID, "scenario", code, "try", try, "runes", utf8.RuneCountInString(text))
	}
	if NeedsRegen(text) {
		return Unavailable, nil
	}
	if _, err := r.facts.Record(ctx, sessionID, code, data, true); err != nil {
		r.logger.Warn("record regenerated text failed", "session_id", sessionID, "scenario", code, "error", err)
	}
	return text, nil
}

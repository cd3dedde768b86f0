// Package facts records generated content as immutable versions, keeps the
// per-session projection current, and derives the session summary from it.
package facts

import (
	"strings"
	"time"

	"github.com/basket/astrobot/internal/jsonval"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/scenario"
)

// Fact is the current projection of everything generated for a session.
// Zero values mean the slot was never generated.
type Fact struct {
	SessionID  int64
	Mission    string
	Love       string
	Strengths  []string
	Weaknesses []string
	Business   []string
	Countries  []string
	Extra      map[string]any
	UpdatedAt  time.Time
}

func fromRow(row persistence.FactRow) Fact {
	f := Fact{
		SessionID: row.SessionID,
		Mission:   row.Mission,
		Love:      row.Love,
		Extra:     jsonval.NormalizeObject(row.Extra),
		UpdatedAt: row.UpdatedAt,
	}
	f.Strengths = listColumn(row.Strengths)
	f.Weaknesses = listColumn(row.Weaknesses)
	f.Business = listColumn(row.Business)
	f.Countries = listColumn(row.Countries)
	return f
}

func listColumn(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return jsonval.Items(raw)
}

func (f Fact) list(code string) []string {
	switch code {
	case persistence.ColStrengths:
		return f.Strengths
	case persistence.ColWeaknesses:
		return f.Weaknesses
	case persistence.ColBusiness:
		return f.Business
	case persistence.ColCountries:
		return f.Countries
	}
	return nil
}

// Text returns the cached text of a text-shaped slot, or the display text of
// an extra entry. List slots yield "".
func (f Fact) Text(code string) string {
	slot := scenario.SlotFor(code)
	switch slot.Kind {
	case scenario.TextSlot:
		if code == persistence.ColLove {
			return f.Love
		}
		return f.Mission
	case scenario.ListSlot:
		return ""
	default:
		return jsonval.Text(f.Extra[slot.ExtraKey], code)
	}
}

// Items returns the cached list of a list slot.
func (f Fact) Items(code string) []string {
	return f.list(code)
}

// Has reports whether anything is cached for the code.
func (f Fact) Has(code string) bool {
	slot := scenario.SlotFor(code)
	switch slot.Kind {
	case scenario.ListSlot:
		return f.list(code) != nil
	case scenario.TextSlot:
		return strings.TrimSpace(f.Text(code)) != ""
	default:
		_, ok := f.Extra[slot.ExtraKey]
		return ok
	}
}

// Value returns the cached slot in the shape generation produced it:
// {"text": ...} for text slots, {"items": [...]} for lists and the stored
// mapping for other extra entries. ok is false when nothing is cached.
func (f Fact) Value(code string) (map[string]any, bool) {
	if !f.Has(code) {
		return nil, false
	}
	slot := scenario.SlotFor(code)
	switch slot.Kind {
	case scenario.ListSlot:
		return map[string]any{"items": toAny(f.list(code))}, true
	case scenario.TextSlot, scenario.ExtraTextSlot:
		return map[string]any{"text": f.Text(code)}, true
	default:
		if m, ok := f.Extra[slot.ExtraKey].(map[string]any); ok {
			return m, true
		}
		return map[string]any{"text": f.Text(code)}, true
	}
}

// Map renders the projection for the generation context. Absent slots are
// null so the model sees every known key.
func (f Fact) Map() map[string]any {
	text := func(s string) any {
		if s == "" {
			return nil
		}
		return s
	}
	items := func(l []string) any {
		if l == nil {
			return nil
		}
		return map[string]any{"items": toAny(l)}
	}
	extra := f.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return map[string]any{
		"mission":    text(f.Mission),
		"love":       text(f.Love),
		"strengths":  items(f.Strengths),
		"weaknesses": items(f.Weaknesses),
		"business":   items(f.Business),
		"countries":  items(f.Countries),
		"extra":      extra,
	}
}

func toAny(l []string) []any {
	out := make([]any, len(l))
	for i, s := range l {
		out[i] = s
	}
	return out
}

package facts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/basket/astrobot/internal/persistence"
)

const (
	// Mission gets the longest excerpt; the other text slots are shorter.
	missionRunes = 160
	snippetRunes = 120
	previewItems = 3
)

// Rebuilder recomputes the session summary from the session row and the
// fact projection.
type Rebuilder struct {
	db     *persistence.Store
	logger *slog.Logger
}

func NewRebuilder(db *persistence.Store, logger *slog.Logger) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{db: db, logger: logger.With("component", "summary")}
}

// Rebuild renders and stores the summary. Same inputs give the same text.
func (r *Rebuilder) Rebuild(ctx context.Context, sessionID int64) (string, error) {
	sess, err := r.db.GetSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("rebuild summary: %w", err)
	}
	row, err := r.db.ReadFacts(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("rebuild summary: %w", err)
	}
	text := Render(sess, fromRow(row))
	if err := r.db.SaveSummary(ctx, sessionID, text); err != nil {
		return "", err
	}
	return text, nil
}

// Render builds the summary text: an identity line followed by one labeled
// excerpt per populated slot, in fixed order.
func Render(sess persistence.Session, f Fact) string {
	parts := []string{identityLine(sess)}

	addText := func(label, text string, limit int) {
		if s := firstSentence(text, limit); s != "" {
			parts = append(parts, label+" "+s)
		}
	}
	addList := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		n := min(len(items), previewItems)
		parts = append(parts, label+" "+strings.Join(items[:n], ", ")+".")
	}

	addText("Mission:", f.Mission, missionRunes)
	addList("Strengths:", f.Strengths)
	addList("Weaknesses:", f.Weaknesses)
	addList("Countries:", f.Countries)
	addList("Business:", f.Business)
	addText("Love:", f.Love, snippetRunes)
	addText("Finance:", f.Text("finance"), snippetRunes)
	addText("Karma:", f.Text("karma"), snippetRunes)
	addText("Year:", f.Text("year"), snippetRunes)

	return strings.Join(parts, " ")
}

func identityLine(sess persistence.Session) string {
	name := orDefault(sess.Name, "user")
	gender := orDefault(sess.Gender, "-")
	system := orDefault(sess.SystemTitle, orDefault(sess.SystemCode, "-"))
	birthTime := orDefault(sess.BirthTime, "unknown")
	return fmt.Sprintf("Name: %s; gender: %s; system: %s; date: %s, time: %s; place: lat=%s, lon=%s, tz=%s.",
		name, gender, system, sess.BirthDate, birthTime,
		strconv.FormatFloat(sess.Lat, 'f', -1, 64),
		strconv.FormatFloat(sess.Lon, 'f', -1, 64),
		sess.TZ)
}

// firstSentence cuts at the first period within limit runes, otherwise
// truncates to limit runes and marks the cut with an ellipsis.
func firstSentence(text string, limit int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return ""
	}
	for i, c := range r {
		if i > limit {
			break
		}
		if c == '.' {
			return string(r[:i+1])
		}
	}
	if len(r) > limit {
		return string(r[:limit]) + "…"
	}
	return string(r)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

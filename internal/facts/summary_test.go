package facts

import (
	"strings"
	"testing"

	"github.com/basket/astrobot/internal/persistence"
)

func TestRender_IdentityAndOrder(t *testing.T) {
	sess := persistence.Session{
		Name: "Ilya", Gender: "male", SystemTitle: "Vedic",
		BirthDate: "1988-01-02", Lat: 59.93, Lon: 30.3, TZ: "Europe/Moscow",
	}
	f := Fact{
		Mission:   "Carry light.",
		Strengths: []string{"focus", "wit", "grit", "calm"},
		Countries: []string{"Peru"},
		Love:      "Slow and sure.",
		Extra:     map[string]any{"karma": "Pay it forward.", "year": map[string]any{"text": "Move."}},
	}
	got := Render(sess, f)
	want := "Name: Ilya; gender: male; system: Vedic; date: 1988-01-02, time: unknown; place: lat=59.93, lon=30.3, tz=Europe/Moscow." +
		" Mission: Carry light." +
		" Strengths: focus, wit, grit." +
		" Countries: Peru." +
		" Love: Slow and sure." +
		" Karma: Pay it forward." +
		" Year: Move."
	if got != want {
		t.Fatalf("Render mismatch\n got: %q\nwant: %q", got, want)
	}
	if Render(sess, f) != got {
		t.Fatal("Render must be deterministic")
	}
}

func TestRender_EmptyFactsOnlyIdentity(t *testing.T) {
	got := Render(persistence.Session{BirthDate: "2000-01-01", BirthTime: "07:30"}, Fact{})
	if !strings.HasPrefix(got, "Name: user; gender: -; system: -; date: 2000-01-01, time: 07:30;") {
		t.Fatalf("unexpected identity line: %q", got)
	}
	if strings.Contains(got, "Mission:") {
		t.Fatalf("absent slots must be omitted: %q", got)
	}
}

func TestFirstSentence(t *testing.T) {
	long := strings.Repeat("ж", 200)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"cut at period", "One. Two.", "One."},
		{"no period short", "no period here", "no period here"},
		{"truncated", long, strings.Repeat("ж", 160) + "…"},
		{"period beyond window", strings.Repeat("a", 170) + ". tail", strings.Repeat("a", 160) + "…"},
		{"period at window edge", strings.Repeat("a", 160) + ".", strings.Repeat("a", 160) + "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstSentence(tt.in, 160); got != tt.want {
				t.Fatalf("firstSentence = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_ExcerptLimitsPerSlot(t *testing.T) {
	long := strings.Repeat("a", 150)
	f := Fact{Mission: long, Love: long}
	got := Render(persistence.Session{Name: "Ilya"}, f)

	if !strings.Contains(got, " Mission: "+long+" ") {
		t.Fatalf("mission under 160 runes should be kept whole: %q", got)
	}
	if !strings.HasSuffix(got, " Love: "+long[:120]+"…") {
		t.Fatalf("love should be cut at 120 runes: %q", got)
	}
}

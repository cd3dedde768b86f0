package channels

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/basket/astrobot/internal/gate"
	"github.com/basket/astrobot/internal/readings"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data    string
		want    callback
		wantErr bool
	}{
		{data: "scn:Mission", want: callback{Action: actionOpen, Code: "mission"}},
		{data: "scnregen:year", want: callback{Action: actionRegen, Code: "year"}},
		{data: "gate:recheck:karma", want: callback{Action: actionRecheck, Code: "karma"}},
		{data: "menu:invite", want: callback{Action: actionMenu, Code: menuInvite}},
		{data: "scn:", wantErr: true},
		{data: "hitl:1:approve", wantErr: true},
		{data: "garbage", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.data, func(t *testing.T) {
			got, err := parseCallback(tc.data)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestMenuKeyboard_MarksLocked(t *testing.T) {
	kb := menuKeyboard([]readings.MenuItem{
		{Code: "mission", Title: "Mission"},
		{Code: "karma", Title: "Karma", Locked: true},
	})
	if len(kb.InlineKeyboard) != 3 {
		t.Fatalf("rows = %d, want 3", len(kb.InlineKeyboard))
	}
	if got := kb.InlineKeyboard[1][0].Text; got != "🔒 Karma" {
		t.Fatalf("locked label = %q", got)
	}
	if data := kb.InlineKeyboard[0][0].CallbackData; data == nil || *data != "scn:mission" {
		t.Fatalf("callback data = %v", data)
	}
}

func TestScreenKeyboard_ChannelGateWithoutLink(t *testing.T) {
	kb := screenKeyboard(readings.Screen{Kind: readings.ScreenChannelGate, Code: "karma"})
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want recheck and back only", len(kb.InlineKeyboard))
	}
	if data := kb.InlineKeyboard[0][0].CallbackData; data == nil || *data != "gate:recheck:karma" {
		t.Fatalf("recheck data = %v", data)
	}
}

func TestScreenText(t *testing.T) {
	content := screenText(readings.Screen{Kind: readings.ScreenContent, Title: "Love & more", Text: "<b>x</b>"})
	if content != "<b>Love &amp; more</b>\n\n&lt;b&gt;x&lt;/b&gt;" {
		t.Fatalf("content = %q", content)
	}
	ref := screenText(readings.Screen{Kind: readings.ScreenReferralGate, Title: "Year",
		Referral: gate.ReferralDecision{Blocked: true, Count: 1, Threshold: 3}})
	if !strings.Contains(ref, "1/3") {
		t.Fatalf("referral text = %q", ref)
	}
	if got := inviteText(readings.Invite{}); !strings.Contains(got, "turned off") {
		t.Fatalf("disabled invite = %q", got)
	}
}

func TestParseProfile(t *testing.T) {
	got, err := parseProfile(" Ada | female | Western | 1991-02-03 | - | 51.5 | -0.12 | Europe/London ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := readings.BirthInput{
		Name: "Ada", Gender: "female", SystemCode: "western", SystemTitle: "Western",
		BirthDate: "1991-02-03", Lat: 51.5, Lon: -0.12, TZ: "Europe/London",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{
		"Ada | female | western | 1991-02-03",
		"Ada | female | tarot | 1991-02-03 | 07:00 | 51.5 | 0 | UTC",
		"Ada | female | western | 1991-02-03 | 07:00 | 95 | 0 | UTC",
	} {
		if _, err := parseProfile(bad); err == nil {
			t.Errorf("parseProfile(%q) accepted", bad)
		}
	}
}

func TestChatWithUser(t *testing.T) {
	if c := chatWithUser("-1001234", 7); c.ChatID != -1001234 || c.UserID != 7 {
		t.Fatalf("numeric = %+v", c)
	}
	if c := chatWithUser("stars", 7); c.SuperGroupUsername != "@stars" {
		t.Fatalf("handle = %+v", c)
	}
}

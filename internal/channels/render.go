package channels

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/astrobot/internal/readings"
)

// Callback actions carried in inline button data.
const (
	actionOpen    = "scn"
	actionRegen   = "scnregen"
	actionRecheck = "gate:recheck"
	actionMenu    = "menu"
)

// Menu targets under actionMenu.
const (
	menuBack    = "back"
	menuInvite  = "invite"
	menuSummary = "summary"
)

var systemTitles = map[string]string{
	"western": "Western",
	"vedic":   "Vedic",
	"bazi":    "BaZi",
}

type callback struct {
	Action string
	Code   string
}

// parseCallback decodes button data of the forms "scn:<code>",
// "scnregen:<code>", "gate:recheck:<code>" and "menu:<target>".
func parseCallback(data string) (callback, error) {
	data = strings.TrimSpace(data)
	if rest, ok := strings.CutPrefix(data, actionRecheck+":"); ok {
		return checkedCallback(actionRecheck, rest)
	}
	action, rest, ok := strings.Cut(data, ":")
	if !ok {
		return callback{}, fmt.Errorf("malformed callback %q", data)
	}
	switch action {
	case actionOpen, actionRegen, actionMenu:
		return checkedCallback(action, rest)
	default:
		return callback{}, fmt.Errorf("unknown callback action %q", action)
	}
}

func checkedCallback(action, code string) (callback, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return callback{}, fmt.Errorf("callback %s without target", action)
	}
	return callback{Action: action, Code: code}, nil
}

func menuKeyboard(items []readings.MenuItem) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items)+1)
	for _, it := range items {
		label := it.Title
		if it.Locked {
			label = "🔒 " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, actionOpen+":"+it.Code),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🤝 Invite a friend", actionMenu+":"+menuInvite),
		tgbotapi.NewInlineKeyboardButtonData("📝 Summary", actionMenu+":"+menuSummary),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func screenKeyboard(scr readings.Screen) tgbotapi.InlineKeyboardMarkup {
	back := tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Menu", actionMenu+":"+menuBack))
	switch scr.Kind {
	case readings.ScreenContent:
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("♻️ Regenerate", actionRegen+":"+scr.Code)),
			back,
		)
	case readings.ScreenChannelGate:
		var rows [][]tgbotapi.InlineKeyboardButton
		if scr.Link != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📣 Open channel", scr.Link)))
		}
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ I subscribed", actionRecheck+":"+scr.Code)),
			back,
		)
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	case readings.ScreenReferralGate:
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🤝 Invite a friend", actionMenu+":"+menuInvite)),
			back,
		)
	default:
		return tgbotapi.NewInlineKeyboardMarkup(back)
	}
}

// screenText renders a screen as Telegram HTML.
func screenText(scr readings.Screen) string {
	title := html.EscapeString(scr.Title)
	switch scr.Kind {
	case readings.ScreenContent:
		if scr.Regenerated {
			return fmt.Sprintf("♻️ <b>%s</b> (updated)\n\n%s", title, html.EscapeString(scr.Text))
		}
		return fmt.Sprintf("<b>%s</b>\n\n%s", title, html.EscapeString(scr.Text))
	case readings.ScreenChannelGate:
		return fmt.Sprintf("🔒 <b>%s</b>\n\nThis section opens for channel subscribers. Subscribe, then tap «I subscribed».", title)
	case readings.ScreenReferralGate:
		return fmt.Sprintf("🔒 <b>%s</b>\n\nInvite friends to unlock this bonus: %d/%d so far.",
			title, scr.Referral.Count, scr.Referral.Threshold)
	case readings.ScreenNoSession:
		return "No active session. Send /start to enter your birth data."
	default:
		return title
	}
}

func inviteText(inv readings.Invite) string {
	if !inv.Enabled {
		return "The referral program is currently turned off."
	}
	var b strings.Builder
	b.WriteString("🤝 <b>Invite a friend</b>\n\n")
	fmt.Fprintf(&b, "Invited: %d/%d\n", inv.Count, inv.Threshold)
	if inv.Link != "" {
		fmt.Fprintf(&b, "Your link: %s", html.EscapeString(inv.Link))
	}
	return b.String()
}

// parseProfile reads "/profile name | gender | system | YYYY-MM-DD | HH:MM | lat | lon | tz".
// A time of "-" or "unknown" means the birth time is not known.
func parseProfile(args string) (readings.BirthInput, error) {
	parts := strings.Split(args, "|")
	if len(parts) != 8 {
		return readings.BirthInput{}, fmt.Errorf("expected 8 fields separated by |, got %d", len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	lat, err := strconv.ParseFloat(parts[5], 64)
	if err != nil || lat < -90 || lat > 90 {
		return readings.BirthInput{}, fmt.Errorf("invalid latitude %q", parts[5])
	}
	lon, err := strconv.ParseFloat(parts[6], 64)
	if err != nil || lon < -180 || lon > 180 {
		return readings.BirthInput{}, fmt.Errorf("invalid longitude %q", parts[6])
	}
	system := strings.ToLower(parts[2])
	title, ok := systemTitles[system]
	if !ok {
		return readings.BirthInput{}, fmt.Errorf("unknown system %q", parts[2])
	}
	birthTime := parts[4]
	if birthTime == "-" || strings.EqualFold(birthTime, "unknown") {
		birthTime = ""
	}
	return readings.BirthInput{
		Name:        parts[0],
		Gender:      parts[1],
		SystemCode:  system,
		SystemTitle: title,
		BirthDate:   parts[3],
		BirthTime:   birthTime,
		Lat:         lat,
		Lon:         lon,
		TZ:          parts[7],
	}, nil
}

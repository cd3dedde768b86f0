package channels

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/astrobot/internal/gate"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/readings"
	"github.com/basket/astrobot/internal/shared"
)

// Readings is the service surface the channel drives. *readings.Service
// satisfies it.
type Readings interface {
	Start(ctx context.Context, tgID int64, name, payload string) (persistence.User, bool, error)
	User(ctx context.Context, tgID int64) (gate.User, error)
	Greeting(ctx context.Context) string
	Menu(ctx context.Context, user gate.User) ([]readings.MenuItem, error)
	Open(ctx context.Context, user gate.User, sessionID int64, code string) (readings.Screen, error)
	Regenerate(ctx context.Context, user gate.User, sessionID int64, code string) (readings.Screen, error)
	RecheckChannel(ctx context.Context, user gate.User, sessionID int64, code string) (readings.Screen, error)
	InviteStatus(ctx context.Context, user gate.User) readings.Invite
	ActiveSessionID(ctx context.Context, userID int64) (int64, error)
	SessionSummary(ctx context.Context, sessionID int64) string
	CompleteOnboarding(ctx context.Context, userID int64, in readings.BirthInput) (persistence.Session, error)
	Reset(ctx context.Context, userID int64) error
}

// TelegramChannel implements the Channel interface for Telegram.
type TelegramChannel struct {
	bot    *tgbotapi.BotAPI
	svc    Readings
	logger *slog.Logger
}

// NewTelegramChannel wraps an initialized bot. The bot is created by the
// caller so the same client can serve membership checks.
func NewTelegramChannel(bot *tgbotapi.BotAPI, svc Readings, logger *slog.Logger) *TelegramChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		bot:    bot,
		svc:    svc,
		logger: logger.With("component", "telegram"),
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}
	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	// Reconnection loop with exponential backoff.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2x the long-poll timeout (stall detection).
// Returns nil on context cancellation, or an error to trigger reconnection.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5 minutes,
	// the connection is likely dead (the library blocks rather than closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			// Each update is one turn with its own trace id.
			turnCtx := shared.WithTraceID(ctx, shared.NewTraceID())
			switch {
			case update.Message != nil && update.Message.From != nil:
				t.handleMessage(turnCtx, update.Message)
			case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
				t.handleCallbackQuery(turnCtx, update.CallbackQuery)
			}

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	from := msg.From
	switch msg.Command() {
	case "start":
		user, referred, err := t.svc.Start(ctx, from.ID, displayName(from), msg.CommandArguments())
		if err != nil {
			t.logger.Error("start failed", "tg_id", from.ID, "error", err)
			t.reply(chatID, "Something went wrong. Please try again.")
			return
		}
		if referred {
			t.logger.Info("user joined by invite", "user_id", user.ID)
		}
		if _, err := t.svc.ActiveSessionID(ctx, user.ID); err == nil {
			t.sendMenu(ctx, chatID, gate.User{ID: user.ID, TGID: from.ID}, html.EscapeString(t.svc.Greeting(ctx)))
			return
		}
		t.replyHTML(chatID, html.EscapeString(t.svc.Greeting(ctx))+"\n\n"+profileHelp, nil)
	case "menu":
		user, err := t.svc.User(ctx, from.ID)
		if err != nil {
			t.logger.Error("resolve user failed", "tg_id", from.ID, "error", err)
			return
		}
		t.sendMenu(ctx, chatID, user, "Choose a section:")
	case "profile":
		t.handleProfile(ctx, chatID, from, msg.CommandArguments())
	case "reset":
		user, err := t.svc.User(ctx, from.ID)
		if err == nil && user.ID > 0 {
			err = t.svc.Reset(ctx, user.ID)
		}
		if err != nil {
			t.logger.Error("reset failed", "tg_id", from.ID, "error", err)
		}
		t.replyHTML(chatID, "Your profile was reset.\n\n"+profileHelp, nil)
	case "summary":
		user, _ := t.svc.User(ctx, from.ID)
		t.sendSummary(ctx, chatID, user)
	default:
		if strings.TrimSpace(msg.Text) != "" {
			t.replyHTML(chatID, "Use the menu buttons or /menu.", nil)
		}
	}
}

const profileHelp = "Send your birth data in one line:\n" +
	"<code>/profile Name | gender | western|vedic|bazi | YYYY-MM-DD | HH:MM or - | lat | lon | Area/City</code>"

func (t *TelegramChannel) handleProfile(ctx context.Context, chatID int64, from *tgbotapi.User, args string) {
	in, err := parseProfile(args)
	if err != nil {
		t.replyHTML(chatID, html.EscapeString(err.Error())+"\n\n"+profileHelp, nil)
		return
	}
	u, _, err := t.svc.Start(ctx, from.ID, displayName(from), "")
	if err != nil {
		t.logger.Error("ensure user failed", "tg_id", from.ID, "error", err)
		return
	}
	if _, err := t.svc.CompleteOnboarding(ctx, u.ID, in); err != nil {
		if errors.Is(err, readings.ErrInvalidInput) {
			t.replyHTML(chatID, "Please check the name you entered: "+html.EscapeString(err.Error()), nil)
			return
		}
		t.logger.Error("onboarding failed", "user_id", u.ID, "error", err)
		t.reply(chatID, "Something went wrong. Please try again.")
		return
	}
	t.sendMenu(ctx, chatID, gate.User{ID: u.ID, TGID: from.ID}, "Your chart is ready. Choose a section:")
}

func (t *TelegramChannel) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	cb, err := parseCallback(query.Data)
	if err != nil {
		t.logger.Debug("ignored callback", "data", query.Data, "error", err)
		t.answer(query.ID, "", false)
		return
	}
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID
	user, err := t.svc.User(ctx, query.From.ID)
	if err != nil {
		t.logger.Error("resolve user failed", "tg_id", query.From.ID, "error", err)
		t.answer(query.ID, "Something went wrong.", true)
		return
	}

	switch cb.Action {
	case actionMenu:
		t.answer(query.ID, "", false)
		switch cb.Code {
		case menuInvite:
			t.replyHTML(chatID, inviteText(t.svc.InviteStatus(ctx, user)), nil)
		case menuSummary:
			t.sendSummary(ctx, chatID, user)
		default:
			t.sendMenu(ctx, chatID, user, "Choose a section:")
		}
		return
	case actionRecheck:
		scr, err := t.svc.RecheckChannel(ctx, user, 0, cb.Code)
		if err == nil && scr.Kind == readings.ScreenChannelGate {
			t.answer(query.ID, "Subscription not visible yet. Check and try again.", true)
			return
		}
		t.answer(query.ID, "", false)
		t.sendScreen(chatID, scr, err)
	case actionRegen:
		t.answer(query.ID, "Regenerating…", false)
		scr, err := t.svc.Regenerate(ctx, user, 0, cb.Code)
		t.sendScreen(chatID, scr, err)
	case actionOpen:
		t.answer(query.ID, "", false)
		t.reply(chatID, "Preparing the section…")
		scr, err := t.svc.Open(ctx, user, 0, cb.Code)
		t.sendScreen(chatID, scr, err)
	}
}

func (t *TelegramChannel) sendScreen(chatID int64, scr readings.Screen, err error) {
	if err != nil {
		t.logger.Error("screen failed", "scenario", scr.Code, "error", err)
		t.reply(chatID, "This section is not available right now.")
		return
	}
	kb := screenKeyboard(scr)
	t.replyHTML(chatID, screenText(scr), &kb)
}

func (t *TelegramChannel) sendMenu(ctx context.Context, chatID int64, user gate.User, header string) {
	items, err := t.svc.Menu(ctx, user)
	if err != nil {
		t.logger.Error("menu failed", "error", err)
		t.reply(chatID, "The menu is not available right now.")
		return
	}
	kb := menuKeyboard(items)
	t.replyHTML(chatID, header, &kb)
}

func (t *TelegramChannel) sendSummary(ctx context.Context, chatID int64, user gate.User) {
	if user.ID == 0 {
		t.replyHTML(chatID, profileHelp, nil)
		return
	}
	sid, err := t.svc.ActiveSessionID(ctx, user.ID)
	if err != nil {
		t.replyHTML(chatID, "No active session. Send /start to enter your birth data.", nil)
		return
	}
	text := t.svc.SessionSummary(ctx, sid)
	if text == "" {
		text = "No summary yet."
	}
	t.replyHTML(chatID, "📝 <b>Summary</b>\n\n"+html.EscapeString(text), nil)
}

func (t *TelegramChannel) answer(queryID, text string, alert bool) {
	var cfg tgbotapi.CallbackConfig
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(queryID, text)
	} else {
		cfg = tgbotapi.NewCallback(queryID, text)
	}
	if _, err := t.bot.Request(cfg); err != nil {
		t.logger.Warn("failed to answer callback", "error", err)
	}
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram reply", "error", err)
	}
}

// replyHTML sends an HTML-formatted message with an optional inline keyboard.
func (t *TelegramChannel) replyHTML(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram message", "error", err)
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

package channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// memberStatuses are the chat-member statuses that count as subscribed.
var memberStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

// Membership checks channel subscriptions through the Bot API. The bot
// must be an administrator of the channel for the lookup to succeed.
type Membership struct {
	bot *tgbotapi.BotAPI
}

func NewMembership(bot *tgbotapi.BotAPI) *Membership {
	return &Membership{bot: bot}
}

func (m *Membership) IsMember(_ context.Context, channel string, userTGID int64) (bool, error) {
	if m == nil || m.bot == nil {
		return false, fmt.Errorf("telegram bot not initialized")
	}
	member, err := m.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: chatWithUser(channel, userTGID),
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %s: %w", channel, err)
	}
	return memberStatuses[member.Status], nil
}

// chatWithUser addresses a channel by numeric id or by @handle.
func chatWithUser(channel string, userTGID int64) tgbotapi.ChatConfigWithUser {
	channel = strings.TrimSpace(channel)
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userTGID}
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return tgbotapi.ChatConfigWithUser{SuperGroupUsername: channel, UserID: userTGID}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

type TelegramConfig struct {
	Enabled bool
	Token   string
	ChatID  int64
}

// telegramSink pushes notifications to a chat. The bot is send-only; no
// poller is attached.
type telegramSink struct {
	bot  *tele.Bot
	chat *tele.Chat
}

func newTelegramSink(cfg TelegramConfig) (*telegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &telegramSink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

func (t *telegramSink) Name() string { return "telegram" }

func (t *telegramSink) Send(ctx context.Context, n Notification) error {
	prefix := "ℹ️"
	if n.Importance == "high" {
		prefix = "🔔"
	}
	_, err := t.bot.Send(t.chat, fmt.Sprintf("%s %s\n%s", prefix, n.Title, n.Body))
	return err
}

package notify

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"wbautoslot/internal/domain"
)

// telegramSender posts to a single operator chat. Telegram does not carry
// per-user routing here; the chat belongs to whoever runs the instance.
type telegramSender struct {
	bot  *tele.Bot
	chat tele.ChatID
}

func newTelegramSender(cfg TelegramConfig) (*telegramSender, error) {
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &telegramSender{bot: b, chat: tele.ChatID(cfg.ChatID)}, nil
}

func (t *telegramSender) SendText(ctx context.Context, _ domain.User, subject, body string) error {
	text := fmt.Sprintf("*%s*\n\n%s", subject, body)

	// telebot's Send has no context support; run it off to the side so a
	// stuck HTTP call cannot pin the caller past its deadline.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(t.chat, text, tele.ModeMarkdown)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

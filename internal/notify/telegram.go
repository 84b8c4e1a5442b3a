package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gyst/internal/logger"
)

// Telegram delivers messages as HTML chat messages through a bot account.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(token string) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	logger.Notify.Info("bot authorized", "account", api.Self.UserName)
	return &Telegram{api: api}, nil
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if msg.ChatID == 0 {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	text, err := Render(msg)
	if err != nil {
		return err
	}
	out := tgbotapi.NewMessage(msg.ChatID, text)
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := t.api.Send(out); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramAdapter posts messages to one chat.
type TelegramAdapter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramAdapter(token string, chatID int64) (*TelegramAdapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramAdapter{bot: bot, chatID: chatID}, nil
}

func (a *TelegramAdapter) Name() string { return "telegram" }

func (a *TelegramAdapter) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := tgbotapi.NewMessage(a.chatID, telegramText(msg))
	out.DisableWebPagePreview = true
	_, err := a.bot.Send(out)
	return err
}

func telegramText(msg Message) string {
	if msg.Title == "" {
		return msg.Text
	}
	return msg.Title + "\n\n" + msg.Text
}

// LogAdapter writes notifications to the service log.
type LogAdapter struct{}

func (LogAdapter) Name() string { return "log" }

func (LogAdapter) Send(_ context.Context, msg Message) error {
	log.Info().Str("kind", msg.Kind).Str("game_id", msg.GameID).Str("title", msg.Title).Msg("notification")
	return nil
}

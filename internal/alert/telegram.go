package alert

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/carelyhq/carely/internal/config"
)

// telegramSender is the slice of the bot API the sink needs; the tests
// substitute it.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink pushes alerts to a caregiver chat.
type TelegramSink struct {
	bot    telegramSender
	chatID int64
}

func NewTelegramSink(cfg config.TelegramConfig) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: cfg.ChatID}, nil
}

func (s *TelegramSink) Create(a Alert) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ Carely alert (%s)\n", strings.ToUpper(a.Severity))
	fmt.Fprintf(&sb, "%s\n", a.Title)
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%s", a.Description)
	}

	msg := tgbotapi.NewMessage(s.chatID, sb.String())
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

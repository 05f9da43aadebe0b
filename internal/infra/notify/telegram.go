// Package notify delivers fire-and-forget operator notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
)

const sendTimeout = 10 * time.Second

// TelegramNotifier sends operator notifications to a single chat. Delivery
// failures are logged, never propagated; the intake path must not depend on
// Telegram availability.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

var _ adapter.Notifier = (*TelegramNotifier)(nil)

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return &TelegramNotifier{bot: bot, chatID: chatID, log: logger}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, ev adapter.NotificationEvent) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	text := renderEvent(ev)
	msg := tgbotapi.NewMessage(n.chatID, text)
	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			n.log.Warn().Err(err).Str("kind", ev.Kind).Msg("notification delivery failed")
		}
	case <-ctx.Done():
		n.log.Warn().Str("kind", ev.Kind).Msg("notification delivery timed out")
	}
}

func renderEvent(ev adapter.NotificationEvent) string {
	switch ev.Kind {
	case "pending_review":
		return fmt.Sprintf("📋 Review needed\nTask %s\n%s", ev.TaskID, ev.Message)
	case "task_failed":
		return fmt.Sprintf("❌ Task failed\nTask %s\n%s", ev.TaskID, ev.Message)
	case "schedule_summary":
		return fmt.Sprintf("🗓 %s", ev.Message)
	case "item_expired":
		return fmt.Sprintf("⏳ %s", ev.Message)
	case "stock_check":
		return fmt.Sprintf("📦 %s", ev.Message)
	default:
		return ev.Message
	}
}

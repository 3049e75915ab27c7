// Package notify delivers out-of-band operator notifications. Reconnect
// prompts must not go out as auto-reply email, so they are pushed to a
// Telegram chat instead.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// Notifier surfaces events that need a human, such as a revoked OAuth grant.
type Notifier interface {
	ReconnectRequired(ctx context.Context, userEmail string, reason error)
	Deadletter(ctx context.Context, userEmail, messageID string, attempts int)
}

// TelegramNotifier sends notifications to a Telegram chat.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier creates a notifier, or nil when no token is configured.
func NewTelegramNotifier(botToken string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	if botToken == "" || chatID == 0 {
		return nil, nil
	}
	b, err := bot.New(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:    b,
		chatID: chatID,
		logger: logger.With("component", "notifier"),
	}, nil
}

// ReconnectRequired tells the operator a user's OAuth grant needs renewal.
func (n *TelegramNotifier) ReconnectRequired(ctx context.Context, userEmail string, reason error) {
	text := fmt.Sprintf("Account %s needs to be reconnected:\n%v", userEmail, reason)
	n.send(ctx, text)
}

// Deadletter reports a message that exhausted its retry budget.
func (n *TelegramNotifier) Deadletter(ctx context.Context, userEmail, messageID string, attempts int) {
	text := fmt.Sprintf("Message %s for %s dead-lettered after %d attempts", messageID, userEmail, attempts)
	n.send(ctx, text)
}

func (n *TelegramNotifier) send(ctx context.Context, text string) {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		n.logger.Error("failed to send notification", "error", err)
	}
}

// NopNotifier drops all notifications; used when Telegram is not configured.
type NopNotifier struct{}

func (NopNotifier) ReconnectRequired(context.Context, string, error) {}
func (NopNotifier) Deadletter(context.Context, string, string, int)  {}

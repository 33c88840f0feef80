package notify

import (
	"context"
	"fmt"
)

// chatMessenger is the slice of the Telegram client the sender needs.
type chatMessenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramSender delivers notifications through the Telegram Bot API to the
// chat id given as destination.
type TelegramSender struct {
	client chatMessenger
}

// NewTelegramSender wraps a Telegram client.
func NewTelegramSender(client chatMessenger) *TelegramSender {
	return &TelegramSender{client: client}
}

// Send posts text to the destination chat.
func (t *TelegramSender) Send(ctx context.Context, destination, text string) error {
	if destination == "" {
		return fmt.Errorf("telegram: empty destination")
	}
	if err := t.client.SendMessage(ctx, destination, text); err != nil {
		return fmt.Errorf("telegram: send to %s: %w", destination, err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// Package notify pushes reconciliation inconsistencies to an operator
// channel. These are the cases that need human follow-up: a ticket exists
// remotely but the mapping write failed.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
)

// Telegram sends operator notifications to a single chat.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Entry
}

// NewTelegram initializes the bot client.
func NewTelegram(token string, chatID int64, logger *logrus.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram notification requires bot token and chat id")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		logger: logger.WithField("component", "notify"),
	}, nil
}

// Inconsistencies reports store inconsistencies from a run to the operator
// chat.
func (t *Telegram) Inconsistencies(ctx context.Context, runID string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*alertsync run %s needs review*\n", runID)
	for _, p := range problems {
		fmt.Fprintf(&b, "- %s\n", p)
	}

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      b.String(),
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to send Telegram message to chat %d: %w", t.chatID, err)
	}
	t.logger.Infof("Reported %d inconsistencies to operator chat", len(problems))
	return nil
}

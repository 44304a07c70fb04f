// Package telegram adapts go-telegram/bot to the command dispatcher: chat discovery, per-chat
// command registration, update routing and replies.
package telegram

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// NewTelegramBot creates a new Telegram bot instance using the go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, errors.New("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created", "token_prefix", tokenPrefix(token))
	return b, nil
}

// RegisterHandlers routes every update to router, wrapped in mw.
func RegisterHandlers(b *bot.Bot, router *Router, mw ...bot.Middleware) error {
	if b == nil {
		return errors.New("bot instance cannot be nil")
	}
	if router == nil {
		return errors.New("router cannot be nil")
	}

	b.RegisterHandlerMatchFunc(router.Match, router.Handle, mw...)
	router.logger.Info("Registered Telegram update router", "middleware_count", len(mw))
	return nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}

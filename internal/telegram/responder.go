package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// maxMessageLength is Telegram's limit for one text message, in characters.
const maxMessageLength = 4096

// responder answers one command message.
type responder struct {
	bot       *bot.Bot
	chat      models.Chat
	userID    int64
	messageID int
	logger    *slog.Logger
}

func newResponder(b *bot.Bot, msg *models.Message, logger *slog.Logger) *responder {
	r := &responder{bot: b, chat: msg.Chat, messageID: msg.ID, logger: logger}
	if msg.From != nil {
		r.userID = msg.From.ID
	}
	return r
}

// Acknowledge shows the typing indicator in the chat.
func (r *responder) Acknowledge(ctx context.Context) error {
	_, err := r.bot.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: r.chat.ID, Action: models.ChatActionTyping})
	if err != nil {
		return fmt.Errorf("failed to send typing action: %w", err)
	}
	return nil
}

// Respond replies to the command message. Telegram has no per-user visibility inside a group,
// so a private response from a group goes to the user's direct chat instead. Users who never
// started the bot cannot be messaged directly; they get the reply in the group.
func (r *responder) Respond(ctx context.Context, content string, private bool) error {
	if private && string(r.chat.Type) != string(models.ChatTypePrivate) && r.userID != 0 {
		err := r.send(ctx, r.userID, 0, content)
		if err == nil {
			return nil
		}
		r.logger.DebugContext(ctx, "Direct message failed, replying in chat", "user_id", r.userID, "error", err)
	}
	return r.send(ctx, r.chat.ID, r.messageID, content)
}

func (r *responder) send(ctx context.Context, chatID int64, replyTo int, content string) error {
	for i, part := range splitMessage(content, maxMessageLength) {
		params := &bot.SendMessageParams{ChatID: chatID, Text: part}
		if i == 0 && replyTo != 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
		}
		if _, err := r.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
		}
	}
	return nil
}

// splitMessage cuts text into parts of at most limit characters, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if s := strings.TrimRight(cur.String(), "\n"); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
		n = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		if n+len(runes) > limit {
			flush()
		}
		for len(runes) > limit {
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		cur.WriteString(string(runes))
		n += len(runes)
	}
	flush()
	return parts
}

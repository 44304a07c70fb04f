package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ohirun/internal/commands"
	"github.com/edgard/ohirun/internal/database"
)

const (
	// maxCommandDescription is Telegram's limit for a bot command description, in characters.
	maxCommandDescription = 256

	defaultServerURL = "https://api.telegram.org"
)

// ChatStore persists the chats the bot belongs to. Telegram cannot enumerate them.
type ChatStore interface {
	UpsertChat(ctx context.Context, chat *database.Chat) error
	DeactivateChat(ctx context.Context, chatID int64) error
	ListActiveChats(ctx context.Context) ([]database.Chat, error)
}

// Gateway exposes chat enumeration and per-chat command registration. A chat's command list is
// the bot command list scoped to that chat.
type Gateway struct {
	bot    *bot.Bot
	chats  ChatStore
	logger *slog.Logger

	// Scoped command reads bypass b; see chatCommands.
	token     string
	serverURL string
	client    *http.Client
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithAPIServer points scoped command reads at a Bot API server other than Telegram's.
func WithAPIServer(serverURL string) GatewayOption {
	return func(g *Gateway) {
		g.serverURL = strings.TrimSuffix(serverURL, "/")
	}
}

// NewGateway creates a gateway over b, authenticated with token. Chats come from chats.
func NewGateway(b *bot.Bot, token string, chats ChatStore, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g := &Gateway{
		bot:       b,
		chats:     chats,
		logger:    logger.With("component", "telegram_gateway"),
		token:     token,
		serverURL: defaultServerURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Guilds lists the active chats.
func (g *Gateway) Guilds(ctx context.Context) ([]int64, error) {
	chats, err := g.chats.ListActiveChats(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids, nil
}

// RegisteredCommands lists the command names scoped to chatID.
func (g *Gateway) RegisteredCommands(ctx context.Context, chatID int64) ([]string, error) {
	current, err := g.chatCommands(ctx, chatID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(current))
	for i, c := range current {
		names[i] = c.Command
	}
	return names, nil
}

// RegisterCommand adds cmd to the command list of chatID. Telegram has no per-command
// registration, so the list is read, extended and written back. The command name doubles as
// the registration id.
func (g *Gateway) RegisterCommand(ctx context.Context, chatID int64, cmd commands.Command) (string, error) {
	current, err := g.chatCommands(ctx, chatID)
	if err != nil {
		return "", err
	}
	for _, c := range current {
		if c.Command == cmd.Name {
			return cmd.Name, nil
		}
	}

	updated := append(current, models.BotCommand{
		Command:     cmd.Name,
		Description: truncateRunes(cmd.Description, maxCommandDescription),
	})
	_, err = g.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: updated,
		Scope:    &models.BotCommandScopeChat{ChatID: chatID},
	})
	if err != nil {
		g.forgetIfGone(ctx, chatID, err)
		return "", fmt.Errorf("failed to set commands for chat %d: %w", chatID, err)
	}
	return cmd.Name, nil
}

// chatCommands reads the command list scoped to chatID. go-telegram/bot drops a
// getMyCommands form whose only field is the scope, which silently reads the default list,
// so this call is sent as JSON directly.
func (g *Gateway) chatCommands(ctx context.Context, chatID int64) ([]models.BotCommand, error) {
	current, err := g.getMyCommands(ctx, chatID)
	if err != nil {
		g.forgetIfGone(ctx, chatID, err)
		return nil, fmt.Errorf("failed to get commands for chat %d: %w", chatID, err)
	}
	return current, nil
}

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      []models.BotCommand `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
}

func (g *Gateway) getMyCommands(ctx context.Context, chatID int64) ([]models.BotCommand, error) {
	body, err := json.Marshal(map[string]any{
		"scope": map[string]any{"type": "chat", "chat_id": chatID},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.serverURL+"/bot"+g.token+"/getMyCommands", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New("failed to build getMyCommands request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// The request URL carries the token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("getMyCommands request failed: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode getMyCommands response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		if out.ErrorCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w, %s", bot.ErrorForbidden, out.Description)
		}
		return nil, fmt.Errorf("telegram api error %d: %s", out.ErrorCode, out.Description)
	}
	if out.Result == nil {
		out.Result = []models.BotCommand{}
	}
	return out.Result, nil
}

// forgetIfGone deactivates a chat Telegram no longer lets the bot act in.
func (g *Gateway) forgetIfGone(ctx context.Context, chatID int64, err error) {
	if !errors.Is(err, bot.ErrorForbidden) {
		return
	}
	g.logger.WarnContext(ctx, "Bot can no longer reach chat, deactivating", "chat_id", chatID, "error", err)
	if dErr := g.chats.DeactivateChat(ctx, chatID); dErr != nil {
		g.logger.ErrorContext(ctx, "Failed to deactivate chat", "chat_id", chatID, "error", dErr)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

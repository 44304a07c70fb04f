package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/ohirun/internal/commands"
	"github.com/edgard/ohirun/internal/database"
	"github.com/edgard/ohirun/internal/dispatch"
)

// Router turns Telegram updates into dispatcher invocations and keeps the chat table current.
type Router struct {
	dispatcher      *dispatch.Dispatcher
	chats           ChatStore
	invalidInputFmt string
	logger          *slog.Logger

	mu       sync.RWMutex
	username string

	// seen holds the chats recorded since startup, to upsert each one once per process.
	seen sync.Map
}

// NewRouter creates a router. invalidInputFmt formats argument errors for the user.
func NewRouter(d *dispatch.Dispatcher, chats ChatStore, invalidInputFmt string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		dispatcher:      d,
		chats:           chats,
		invalidInputFmt: invalidInputFmt,
		logger:          logger.With("component", "telegram_router"),
	}
}

// Ready is the ready hook: it records the bot's own identity, then registers missing commands
// in every known chat.
func (r *Router) Ready(ctx context.Context, me *models.User) (dispatch.Summary, error) {
	if me != nil {
		r.mu.Lock()
		r.username = me.Username
		r.mu.Unlock()
		r.logger.InfoContext(ctx, "Gateway ready", "bot_id", me.ID, "bot_username", me.Username)
	}
	return r.dispatcher.RegisterAll(ctx)
}

// Match selects the updates the router handles.
func (r *Router) Match(update *models.Update) bool {
	return update.Message != nil || update.MyChatMember != nil
}

// Handle processes one update. It is a go-telegram/bot handler; each update runs in its own
// goroutine.
func (r *Router) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.MyChatMember != nil:
		r.handleMembership(ctx, update.MyChatMember)
	case update.Message != nil:
		r.handleMessage(ctx, b, update.ID, update.Message)
	}
}

func (r *Router) handleMembership(ctx context.Context, m *models.ChatMemberUpdated) {
	log := r.logger.With("chat_id", m.Chat.ID, "status", m.NewChatMember.Type)

	switch m.NewChatMember.Type {
	case models.ChatMemberTypeLeft, models.ChatMemberTypeBanned:
		r.seen.Delete(m.Chat.ID)
		if err := r.chats.DeactivateChat(ctx, m.Chat.ID); err != nil {
			log.ErrorContext(ctx, "Failed to deactivate chat", "error", err)
			return
		}
		log.InfoContext(ctx, "Bot removed from chat")
	default:
		log.InfoContext(ctx, "Bot added to chat")
		r.trackChat(ctx, m.Chat, true)
	}
}

func (r *Router) handleMessage(ctx context.Context, b *bot.Bot, updateID int64, msg *models.Message) {
	r.trackChat(ctx, msg.Chat, false)

	if msg.From == nil || msg.From.IsBot {
		return
	}
	name, rest, addressed, ok := r.parseCommand(msg.Text)
	if !ok {
		return
	}

	log := r.logger.With("command", name, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	cmd, found := r.dispatcher.Registry().Lookup(name)
	// In a group an unaddressed command may belong to another bot.
	if !found && !addressed && msg.Chat.Type != models.ChatTypePrivate {
		log.DebugContext(ctx, "Ignoring unknown unaddressed command in group")
		return
	}
	resp := newResponder(b, msg, log)

	inv := &commands.Invocation{
		ID:       strconv.FormatInt(updateID, 10),
		GuildID:  msg.Chat.ID,
		UserID:   strconv.FormatInt(msg.From.ID, 10),
		Username: displayName(msg.From),
		Name:     name,
	}

	if found {
		values, sub, err := parseArguments(cmd, rest)
		if err != nil {
			r.rejectArguments(ctx, log, resp, err)
			return
		}
		inv.Subcommand = sub
		inv.Values = values
	}

	if err := r.dispatcher.Dispatch(ctx, inv, resp); err != nil {
		log.DebugContext(ctx, "Dispatch finished with error", "error", err)
	}
}

func parseArguments(cmd commands.Command, rest string) ([]commands.Value, string, error) {
	args, err := commands.Tokenize(rest)
	if err != nil {
		var argErr *commands.ArgumentError
		if errors.As(err, &argErr) {
			argErr.Command = cmd.Name
			argErr.Usage = commands.Usage(cmd)
		}
		return nil, "", err
	}
	return commands.Parse(cmd, args)
}

func (r *Router) rejectArguments(ctx context.Context, log *slog.Logger, resp *responder, err error) {
	var argErr *commands.ArgumentError
	if !errors.As(err, &argErr) {
		log.ErrorContext(ctx, "Failed to parse arguments", "error", err)
		return
	}

	log.WarnContext(ctx, "Invalid command arguments", "option", argErr.Option, "error", argErr.Message)
	text := fmt.Sprintf(r.invalidInputFmt, argErr.Message)
	if argErr.Usage != "" {
		text += "\n使い方: " + argErr.Usage
	}
	if rErr := resp.Respond(ctx, text, true); rErr != nil {
		log.ErrorContext(ctx, "Failed to send input error", "error", rErr)
	}
}

// parseCommand splits "/name@bot args" into the lowercased name and the argument text, and
// reports whether the command named this bot. Commands addressed to another bot are ignored.
func (r *Router) parseCommand(text string) (name, rest string, addressed, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false, false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	name, target, addressed := strings.Cut(head, "@")
	if name == "" {
		return "", "", false, false
	}
	if addressed {
		r.mu.RLock()
		own := r.username
		r.mu.RUnlock()
		if own != "" && !strings.EqualFold(target, own) {
			return "", "", false, false
		}
	}
	return strings.ToLower(name), strings.TrimSpace(rest), addressed, true
}

// trackChat records chat the first time it is seen in this process and registers commands in
// it. force repeats both, for a chat the bot was just added to.
func (r *Router) trackChat(ctx context.Context, chat models.Chat, force bool) {
	if _, loaded := r.seen.LoadOrStore(chat.ID, struct{}{}); loaded && !force {
		return
	}

	log := r.logger.With("chat_id", chat.ID)
	record := &database.Chat{ID: chat.ID, Type: string(chat.Type), Title: chatTitle(chat)}
	if err := r.chats.UpsertChat(ctx, record); err != nil {
		r.seen.Delete(chat.ID)
		log.ErrorContext(ctx, "Failed to record chat", "error", err)
		return
	}

	if !force && r.dispatcher.State(chat.ID) != dispatch.Unregistered {
		return
	}
	if _, err := r.dispatcher.RegisterGuild(ctx, chat.ID); err != nil && !errors.Is(err, dispatch.ErrRegistrationInProgress) {
		log.WarnContext(ctx, "Command registration for chat failed", "error", err)
	}
}

func chatTitle(chat models.Chat) string {
	switch {
	case chat.Title != "":
		return chat.Title
	case chat.Username != "":
		return "@" + chat.Username
	default:
		return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
}

func displayName(u *models.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/ohirun/internal/commands"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) commands.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler processes the /start command using injected dependencies.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
	log := h.deps.Logger.With("handler", "start")
	log.InfoContext(ctx, "Handling /start command", "chat_id", inv.GuildID, "user_id", inv.UserID)

	if err := r.Respond(ctx, h.deps.Config.Messages.Welcome, false); err != nil {
		return fmt.Errorf("failed to send welcome message: %w", err)
	}
	return nil
}

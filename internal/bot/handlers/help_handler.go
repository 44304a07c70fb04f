package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/ohirun/internal/commands"
)

// NewHelpHandler returns a handler for the /help command. list supplies the commands to
// describe; it is read on every call so the help text always matches the registry.
func NewHelpHandler(deps HandlerDeps, list func() []commands.Command) commands.HandlerFunc {
	return helpHandler{deps: deps, list: list}.Handle
}

// helpHandler processes the /help command using injected dependencies.
type helpHandler struct {
	deps HandlerDeps
	list func() []commands.Command
}

func (h helpHandler) Handle(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
	log := h.deps.Logger.With("handler", "help")
	log.InfoContext(ctx, "Handling /help command", "chat_id", inv.GuildID, "user_id", inv.UserID)

	if err := r.Respond(ctx, helpText(h.deps.Config.Messages.HelpHeader, h.list()), false); err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}
	return nil
}

func helpText(header string, cmds []commands.Command) string {
	var b strings.Builder
	b.WriteString(header)
	for _, c := range cmds {
		fmt.Fprintf(&b, "\n\n/%s - %s", c.Name, c.Description)
		for _, s := range c.Subcommands {
			fmt.Fprintf(&b, "\n  %s: %s", s.Name, s.Description)
		}
		if usage := commands.Usage(c); usage != "/"+c.Name {
			fmt.Fprintf(&b, "\n  使い方: %s", usage)
		}
	}
	return b.String()
}

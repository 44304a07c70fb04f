package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edgard/ohirun/internal/commands"
	"github.com/edgard/ohirun/internal/lunch"
)

// NewOhiruHandler returns a handler for the /ohiru command.
func NewOhiruHandler(deps HandlerDeps) commands.HandlerFunc {
	return ohiruHandler{deps}.Handle
}

// ohiruHandler picks a lunch. Bare calls avoid the caller's recent suggestions and record the
// result; the type and store forms are stateless filtered draws.
type ohiruHandler struct {
	deps HandlerDeps
}

func (h ohiruHandler) Handle(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
	log := h.deps.Logger.With("handler", "ohiru", "user_id", inv.UserID, "subcommand", inv.Subcommand)
	msgs := h.deps.Config.Messages

	var (
		d         *lunch.Decision
		err       error
		noOptions string
	)
	switch inv.Subcommand {
	case "type":
		foodTypeID, _ := inv.Int("foodtype")
		d, err = h.deps.Engine.DecideLunchByFoodType(ctx, foodTypeID)
		noOptions = msgs.NoOptionsByTypeMsg
	case "store":
		storeID, _ := inv.Int("storeid")
		d, err = h.deps.Engine.DecideLunchByStore(ctx, storeID)
		noOptions = msgs.NoOptionsByStoreMsg
	default:
		d, err = h.deps.Engine.DecideLunch(ctx, inv.UserID, inv.Username, h.deps.now())
		noOptions = msgs.NoOptionsMsg
	}

	if errors.Is(err, lunch.ErrNoOptionsAvailable) {
		log.WarnContext(ctx, "No lunch options available")
		if rErr := r.Respond(ctx, noOptions, true); rErr != nil {
			return fmt.Errorf("failed to send no options message: %w", rErr)
		}
		return nil
	}
	if err != nil {
		return err
	}

	text := suggestionText(msgs.SuggestionFmt, d)
	if comment := h.comment(ctx, d); comment != "" {
		text += "\n\n💬 " + comment
	}

	if err := r.Respond(ctx, text, false); err != nil {
		return fmt.Errorf("failed to send suggestion: %w", err)
	}
	log.InfoContext(ctx, "Lunch suggested", "username", inv.Username, "store", d.Store.Name, "meal", d.Meal.Name)
	return nil
}

// comment asks Gemini for a one-liner. Failures only cost the comment.
func (h ohiruHandler) comment(ctx context.Context, d *lunch.Decision) string {
	if h.deps.GeminiClient == nil {
		return ""
	}
	comment, err := h.deps.GeminiClient.CommentOnLunch(ctx, d)
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "Failed to get lunch comment", "handler", "ohiru", "error", err)
		return ""
	}
	return comment
}

func suggestionText(format string, d *lunch.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, format, d.Store.Name, d.Meal.Name)

	b.WriteString("\n")
	if d.Store.Genre != "" {
		fmt.Fprintf(&b, "\n🏪 %s（%s）", d.Store.Name, d.Store.Genre)
	} else {
		fmt.Fprintf(&b, "\n🏪 %s", d.Store.Name)
	}
	if d.Meal.FoodTypeName != "" {
		fmt.Fprintf(&b, "\n🍚 %s（%s）", d.Meal.Name, d.Meal.FoodTypeName)
	} else {
		fmt.Fprintf(&b, "\n🍚 %s", d.Meal.Name)
	}
	if d.Price != nil {
		fmt.Fprintf(&b, "\n💴 %s", formatYen(*d.Price))
	}
	if d.Meal.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", d.Meal.Description)
	}
	if d.Repeated {
		b.WriteString("\n\n🔁 最近の提案が一巡したため、同じ組み合わせが出ることがあります。")
	}
	return b.String()
}

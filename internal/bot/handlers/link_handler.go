package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/ohirun/internal/commands"
)

// NewLinkHandler returns a handler for the /link command.
func NewLinkHandler(deps HandlerDeps) commands.HandlerFunc {
	return linkHandler{deps}.Handle
}

type linkHandler struct {
	deps HandlerDeps
}

func (h linkHandler) Handle(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
	log := h.deps.Logger.With("handler", "link", "user_id", inv.UserID)

	storeID, _ := inv.Int("storeid")
	mealID, _ := inv.Int("mealid")
	var price *float64
	if p, ok := inv.Number("price"); ok {
		price = &p
	}

	link, err := h.deps.Catalog.LinkStoreMeal(ctx, storeID, mealID, price)
	if err != nil {
		if handled, rErr := respondInputError(ctx, h.deps, log, r, err); handled {
			return rErr
		}
		return err
	}

	text := fmt.Sprintf("✅ 店舗と食べ物を関連付けました\n店舗: %s (ID: %d)\n食べ物: %s (ID: %d)",
		link.Store.Name, link.Store.ID, link.Meal.Name, link.Meal.ID)
	if link.Price != nil {
		text += "\n価格: " + formatYen(*link.Price)
	}

	if err := r.Respond(ctx, text, false); err != nil {
		return fmt.Errorf("failed to send link confirmation: %w", err)
	}
	return nil
}

package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/ohirun/internal/commands"
)

// NewAddHandler returns a handler for the /add command.
func NewAddHandler(deps HandlerDeps) commands.HandlerFunc {
	return addHandler{deps}.Handle
}

// addHandler registers stores and meals.
type addHandler struct {
	deps HandlerDeps
}

func (h addHandler) Handle(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
	log := h.deps.Logger.With("handler", "add", "subcommand", inv.Subcommand, "user_id", inv.UserID)

	var (
		text string
		err  error
	)
	switch inv.Subcommand {
	case "store":
		text, err = h.addStore(ctx, inv)
	case "meal":
		text, err = h.addMeal(ctx, inv)
	default:
		return fmt.Errorf("unexpected subcommand %q", inv.Subcommand)
	}

	if err != nil {
		if handled, rErr := respondInputError(ctx, h.deps, log, r, err); handled {
			return rErr
		}
		return err
	}

	if err := r.Respond(ctx, text, false); err != nil {
		return fmt.Errorf("failed to send add confirmation: %w", err)
	}
	return nil
}

func (h addHandler) addStore(ctx context.Context, inv *commands.Invocation) (string, error) {
	name, _ := inv.String("name")
	genre, _ := inv.String("genre")

	store, err := h.deps.Catalog.AddStore(ctx, name, genre)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ 店舗を追加しました\n店舗名: %s\nジャンル: %s\nID: %d", store.Name, store.Genre, store.ID), nil
}

func (h addHandler) addMeal(ctx context.Context, inv *commands.Invocation) (string, error) {
	foodTypeID, _ := inv.Int("foodtype")
	name, _ := inv.String("name")
	description, _ := inv.String("description")

	meal, err := h.deps.Catalog.AddMeal(ctx, name, foodTypeID, description)
	if err != nil {
		return "", err
	}

	text := fmt.Sprintf("✅ 食べ物を追加しました\n食べ物名: %s\n種類: %s\nID: %d", meal.Name, h.foodTypeName(ctx, meal.FoodTypeID), meal.ID)
	if meal.Description != "" {
		text += "\n説明: " + meal.Description
	}
	return text, nil
}

// foodTypeName falls back to the numeric id when the lookup fails; the meal is already saved.
func (h addHandler) foodTypeName(ctx context.Context, id int64) string {
	types, err := h.deps.Catalog.FoodTypes(ctx)
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "Failed to list food types", "handler", "add", "error", err)
		return fmt.Sprintf("%d", id)
	}
	for _, ft := range types {
		if ft.ID == id {
			return ft.Name
		}
	}
	return fmt.Sprintf("%d", id)
}

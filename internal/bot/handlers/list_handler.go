package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/ohirun/internal/commands"
)

// NewListHandler returns a handler for the /list command.
func NewListHandler(deps HandlerDeps) commands.HandlerFunc {
	return listHandler{deps}.Handle
}

// listHandler shows registered stores, meals, links or food types.
type listHandler struct {
	deps HandlerDeps
}

func (h listHandler) Handle(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
	log := h.deps.Logger.With("handler", "list", "subcommand", inv.Subcommand, "user_id", inv.UserID)

	var (
		lines []string
		title string
		unit  string
		empty string
		err   error
	)
	switch inv.Subcommand {
	case "stores":
		title, unit, empty = "🏪 登録されている店舗一覧", "店舗", "📭 登録されている店舗がありません"
		lines, err = h.stores(ctx)
	case "meals":
		title, unit, empty = "🍱 登録されている食べ物一覧", "食べ物", "📭 登録されている食べ物がありません"
		lines, err = h.meals(ctx)
	case "links":
		title, unit, empty = "🔗 店舗と食べ物の関連付け一覧", "関連付け", "📭 登録されている関連付けがありません"
		lines, err = h.links(ctx)
	case "types":
		title, unit, empty = "🍚 食べ物の種類一覧", "種類", "📭 食べ物の種類がありません"
		lines, err = h.foodTypes(ctx)
	default:
		return fmt.Errorf("unexpected subcommand %q", inv.Subcommand)
	}
	if err != nil {
		return err
	}

	if len(lines) == 0 {
		if err := r.Respond(ctx, empty, true); err != nil {
			return fmt.Errorf("failed to send empty list message: %w", err)
		}
		return nil
	}

	text := fmt.Sprintf("%s\n\n%s\n\n合計: %d %s", title, strings.Join(lines, "\n"), len(lines), unit)
	if err := r.Respond(ctx, text, false); err != nil {
		return fmt.Errorf("failed to send list: %w", err)
	}
	log.InfoContext(ctx, "Listed entries", "count", len(lines))
	return nil
}

func (h listHandler) stores(ctx context.Context) ([]string, error) {
	stores, err := h.deps.Catalog.Stores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	lines := make([]string, 0, len(stores))
	for _, s := range stores {
		lines = append(lines, fmt.Sprintf("ID: %d - %s (%s)", s.ID, s.Name, s.Genre))
	}
	return lines, nil
}

func (h listHandler) meals(ctx context.Context) ([]string, error) {
	meals, err := h.deps.Catalog.Meals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	lines := make([]string, 0, len(meals))
	for _, m := range meals {
		line := fmt.Sprintf("ID: %d - %s (%s)", m.ID, m.Name, m.FoodTypeName)
		if m.Description != "" {
			line += " - " + m.Description
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (h listHandler) links(ctx context.Context) ([]string, error) {
	links, err := h.deps.Catalog.Links(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	lines := make([]string, 0, len(links))
	for _, l := range links {
		line := fmt.Sprintf("%s × %s (%s)", l.StoreName, l.MealName, l.FoodTypeName)
		if l.Price.Valid {
			line += " - " + formatYen(l.Price.Float64)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (h listHandler) foodTypes(ctx context.Context) ([]string, error) {
	types, err := h.deps.Catalog.FoodTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list food types: %w", err)
	}
	lines := make([]string, 0, len(types))
	for _, ft := range types {
		line := fmt.Sprintf("ID: %d - %s", ft.ID, ft.Name)
		if ft.Description != "" {
			line += " (" + ft.Description + ")"
		}
		lines = append(lines, line)
	}
	return lines, nil
}

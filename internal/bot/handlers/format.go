package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/edgard/ohirun/internal/catalog"
	"github.com/edgard/ohirun/internal/commands"
)

// formatYen renders a price rounded to whole yen with thousands separators, e.g. ¥1,280.
func formatYen(price float64) string {
	n := int64(math.Round(price))
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	digits := strconv.FormatInt(n, 10)
	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return sign + "¥" + string(out)
}

// respondInputError answers catalog validation failures privately. It reports false, and sends
// nothing, for any other error.
func respondInputError(ctx context.Context, deps HandlerDeps, log *slog.Logger, r commands.Responder, err error) (bool, error) {
	var msg string
	var vErr *catalog.ValidationError
	switch {
	case errors.As(err, &vErr):
		msg = vErr.Message
	case errors.Is(err, catalog.ErrDuplicate):
		msg = "既に登録されています。"
	case errors.Is(err, catalog.ErrNotFound):
		msg = "指定されたデータが見つかりません。"
	default:
		return false, nil
	}

	log.WarnContext(ctx, "Invalid input", "error", err)
	if rErr := r.Respond(ctx, fmt.Sprintf(deps.Config.Messages.InvalidInputFmt, msg), true); rErr != nil {
		return true, fmt.Errorf("failed to send input error: %w", rErr)
	}
	return true, nil
}

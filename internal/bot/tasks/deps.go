// Package tasks implements the bot's scheduled maintenance tasks.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/ohirun/internal/dispatch"
)

// Maintainer runs database housekeeping.
type Maintainer interface {
	RunSQLMaintenance(ctx context.Context) error
}

// Registrar re-registers commands in every known chat.
type Registrar interface {
	RegisterAll(ctx context.Context) (dispatch.Summary, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger     *slog.Logger
	Maintainer Maintainer
	Registrar  Registrar
}

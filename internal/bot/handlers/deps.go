package handlers

import (
	"log/slog"
	"time"

	"github.com/edgard/ohirun/internal/catalog"
	"github.com/edgard/ohirun/internal/config"
	"github.com/edgard/ohirun/internal/gemini"
	"github.com/edgard/ohirun/internal/lunch"
)

// HandlerDeps provides dependencies for command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Engine  *lunch.Engine
	Catalog *catalog.Service
	// GeminiClient is nil when lunch commentary is disabled.
	GeminiClient gemini.Client
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d HandlerDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Package bot wires the lifecycle of the running bot: the Telegram listener, the ready hook,
// the scheduler and the optional HTTP server.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/ohirun/internal/dispatch"
	"github.com/edgard/ohirun/internal/server"
	"github.com/edgard/ohirun/internal/telegram"
)

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger     *slog.Logger
	tgBot      *tgbot.Bot
	router     *telegram.Router
	dispatcher *dispatch.Dispatcher
	scheduler  *Scheduler
	httpServer *server.Server
	drain      time.Duration
}

// NewBot creates the orchestrator. httpServer may be nil. drain bounds how long shutdown waits
// for in-flight command handlers.
func NewBot(
	logger *slog.Logger,
	tgBot *tgbot.Bot,
	router *telegram.Router,
	dispatcher *dispatch.Dispatcher,
	scheduler *Scheduler,
	httpServer *server.Server,
	drain time.Duration,
) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		tgBot:      tgBot,
		router:     router,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		httpServer: httpServer,
		drain:      drain,
	}
}

// Run identifies the bot, fires the ready hook and runs every component until ctx is
// cancelled or one of them fails. On the way out it waits for in-flight handlers so a
// suggestion is never cut off before its history row is written.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	me, err := b.tgBot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	b.logger.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")
		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped")

		if gCtx.Err() == nil {
			return errors.New("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		summary, err := b.router.Ready(gCtx, me)
		if err != nil {
			// command_sync and the next message in each chat retry registration.
			b.logger.Error("Startup command registration failed", "error", err)
			return nil
		}
		b.logger.Info("Startup command registration done", "guilds", summary.Guilds, "registered", summary.Registered, "failed", summary.Failed)
		return nil
	})

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if b.httpServer != nil {
		g.Go(func() error {
			return b.httpServer.Run(gCtx)
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.drain)
	defer cancel()
	if err := b.dispatcher.Wait(drainCtx); err != nil {
		b.logger.Warn("Gave up waiting for in-flight command handlers", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", runErr)
		return runErr
	}

	b.logger.Info("Bot orchestrator stopped gracefully")
	return nil
}

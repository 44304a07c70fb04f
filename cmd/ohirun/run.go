package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/edgard/ohirun/internal/bot"
	"github.com/edgard/ohirun/internal/bot/handlers"
	"github.com/edgard/ohirun/internal/bot/tasks"
	"github.com/edgard/ohirun/internal/catalog"
	"github.com/edgard/ohirun/internal/config"
	"github.com/edgard/ohirun/internal/database"
	"github.com/edgard/ohirun/internal/dispatch"
	"github.com/edgard/ohirun/internal/gemini"
	"github.com/edgard/ohirun/internal/logger"
	"github.com/edgard/ohirun/internal/lunch"
	"github.com/edgard/ohirun/internal/server"
	"github.com/edgard/ohirun/internal/telegram"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, *configPath)
		},
	}
}

// loadConfig loads the configuration and installs the configured logger as the default.
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
	return cfg, log, nil
}

// run initializes every component (config, logger, db, engine, commands, telegram, scheduler,
// http) and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database %q: %w", cfg.Database.Path, err)
	}
	defer database.CloseDB(db)
	repo := database.NewRepository(db, log)

	engine := lunch.NewEngine(repo, lunch.WithLookback(cfg.Lunch.Lookback), lunch.WithLogger(log))

	var gemClient gemini.Client
	if cfg.Gemini.Enabled {
		gemClient, err = gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			return fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
	}

	registry, err := handlers.NewRegistry(handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Engine:       engine,
		Catalog:      catalog.NewService(repo, log),
		GeminiClient: gemClient,
	})
	if err != nil {
		return fmt.Errorf("failed to build command registry: %w", err)
	}

	// The client timeout must outlast a long poll.
	httpClient := &http.Client{Timeout: cfg.Telegram.PollTimeout + 10*time.Second}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithHTTPClient(cfg.Telegram.PollTimeout, httpClient))
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(registry, telegram.NewGateway(tg, cfg.Telegram.Token, repo, log), dispatch.Config{
		RegistrationTimeout:     cfg.Dispatch.RegistrationTimeout,
		RegistrationConcurrency: cfg.Dispatch.RegistrationConcurrency,
		HandlerTimeout:          cfg.Dispatch.HandlerTimeout,
		UnknownCommandMsg:       cfg.Messages.UnknownCommandMsg,
		ErrorGeneralMsg:         cfg.Messages.ErrorGeneralMsg,
	}, log)

	router := telegram.NewRouter(dispatcher, repo, cfg.Messages.InvalidInputFmt, log)
	if err := telegram.RegisterHandlers(tg, router, logger.Middleware(log)); err != nil {
		return err
	}

	sched, err := bot.NewScheduler(log, cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:     log,
		Maintainer: repo,
		Registrar:  dispatcher,
	}))
	if err != nil {
		return err
	}

	var httpServer *server.Server
	if cfg.HTTP.Enabled {
		httpServer = server.New(cfg.HTTP.Addr, repo, registry, log)
	}

	app := bot.NewBot(log, tg, router, dispatcher, sched, httpServer, cfg.Dispatch.HandlerTimeout)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("bot stopped due to error: %w", runErr)
	}

	log.Info("Bot stopped gracefully.")
	return nil
}

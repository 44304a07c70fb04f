package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/ohirun/internal/bot/handlers"
	"github.com/edgard/ohirun/internal/commands"
	"github.com/edgard/ohirun/internal/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			db, err := database.NewDB(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to migrate database %q: %w", cfg.Database.Path, err)
			}
			database.CloseDB(db)

			log.Info("Database is up to date", "path", cfg.Database.Path)
			return nil
		},
	}
}

func newCommandsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Print the chat commands the bot registers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			registry, err := handlers.NewRegistry(handlers.HandlerDeps{Logger: log, Config: cfg})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range registry.List() {
				fmt.Fprintf(out, "/%s - %s\n  %s\n", c.Name, c.Description, commands.Usage(c))
			}
			return nil
		},
	}
}

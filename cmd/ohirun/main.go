// Package main contains the entrypoint for the ohirun lunch bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ohirun",
		Short:         "Telegram bot that decides where to have lunch",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newMigrateCmd(&configPath))
	rootCmd.AddCommand(newCommandsCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

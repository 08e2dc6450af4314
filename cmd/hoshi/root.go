package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/igorvasilek/hoshi/common/environment"
	"github.com/igorvasilek/hoshi/common/version"
)

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "hoshi",
		Short:        "Hoshi is a personal assistant bot for Telegram",
		SilenceUsage: true,
		Version:      version.Info(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(envFile, cmd.Flags().Changed("env-file"))
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newAdminsCmd())
	return cmd
}

// loadEnv reads path into the environment without overriding variables that
// are already set. A missing default file is not an error.
func loadEnv(path string, explicit bool) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No .env file found, using environment variables")
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Hoshi %s\n", version.Info())
		},
	}
}

// dbPath resolves the --db flag, falling back to DATABASE_PATH after the
// dotenv file has been loaded.
func dbPath(flag string) string {
	if flag != "" {
		return flag
	}
	return environment.StringOr("DATABASE_PATH", "./hoshi.db")
}

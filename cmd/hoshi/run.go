package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igorvasilek/hoshi/common/version"
	"github.com/igorvasilek/hoshi/internal/hoshi/app"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot and poll Telegram for updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := app.ConfigFromEnv()
			if err != nil {
				return err
			}

			closer, err := logging.Setup(config.LogLevel, config.LogFormat, config.LogDir)
			if err != nil {
				return err
			}
			defer closer.Close()

			slog.Info("starting Hoshi", append(version.LogArgs(), "log_file", logging.CurrentFile())...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hoshi, err := app.New(config)
			if err != nil {
				return fmt.Errorf("failed to initialize Hoshi: %w", err)
			}
			defer hoshi.Stop()

			if err := hoshi.Run(ctx); err != nil {
				return fmt.Errorf("error running Hoshi: %w", err)
			}
			slog.Info("Hoshi stopped")
			return nil
		},
	}
}

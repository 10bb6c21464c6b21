package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drivearc/drivearc/internal/config"
	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "drivearc",
	Short: "Resumable bulk downloader for remote folder trees",
	Long: `drivearc mirrors remote folder trees to local disk and keeps a durable
progress record, so interrupted or partially failed runs pick up where they
left off. Configuration comes from environment variables or a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; deployed environments export variables directly.
		_ = godotenv.Load()

		var err error

		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		handler := logctx.NewTraceHandler(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
		)
		slog.SetDefault(slog.New(handler))

		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, statusCmd, resetCmd, pruneCmd)
}

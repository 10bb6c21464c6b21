package main

import (
	"fmt"
	"log/slog"

	"github.com/drivearc/drivearc/internal/cleanup"
	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove zero-byte files left under the output directory",
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, _ []string) error {
	ctx := logctx.WithLogger(cmd.Context(), slog.Default())

	removed, err := cleanup.PruneEmptyFiles(ctx, cfg.OutputDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d empty files.\n", removed)

	return nil
}

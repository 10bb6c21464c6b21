package main

import (
	"fmt"

	"github.com/drivearc/drivearc/internal/progress"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all download progress",
	Long: `Delete the durable progress file. The next run re-lists everything and
relies on the on-disk idempotence check, so files already downloaded are not
fetched again.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, _ []string) error {
	store, err := progress.Open(cfg.ProgressFile)
	if err != nil {
		return err
	}

	if err := store.Reset(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Progress cleared.")

	return nil
}

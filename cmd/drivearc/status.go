package main

import (
	"log/slog"
	"os"

	"github.com/drivearc/drivearc/internal/journal"
	journalsqlite "github.com/drivearc/drivearc/internal/journal/sqlite"
	"github.com/drivearc/drivearc/internal/progress"
	"github.com/drivearc/drivearc/internal/report"
	"github.com/spf13/cobra"
)

const (
	failedSampleSize   = 10
	recentErrorCount   = 5
	recentAttemptCount = 10
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show download progress counts",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	store, err := progress.Open(cfg.ProgressFile)
	if err != nil {
		return err
	}

	st := report.Build(store.Snapshot(), failedSampleSize, recentErrorCount)

	report.WriteStatus(cmd.OutOrStdout(), st, recentAttempts(cmd))

	return nil
}

// recentAttempts reads the latest journal entries. Best effort: status must
// keep working when the journal is disabled or was never written.
func recentAttempts(cmd *cobra.Command) []journal.Record {
	if cfg.JournalPath == "" {
		return nil
	}

	if _, err := os.Stat(cfg.JournalPath); err != nil {
		return nil
	}

	db, err := journalsqlite.InitDB(cfg.JournalPath)
	if err != nil {
		slog.Warn("failed to open journal", "err", err)

		return nil
	}
	defer db.Close()

	attempts, err := journalsqlite.NewJournal(db).Recent(cmd.Context(), recentAttemptCount)
	if err != nil {
		slog.Warn("failed to read journal", "err", err)

		return nil
	}

	return attempts
}

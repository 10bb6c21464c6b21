package sqlite

import (
	"context"
	"database/sql"

	"github.com/drivearc/drivearc/internal/journal"
	"github.com/drivearc/drivearc/internal/telemetry"
)

// InstrumentedJournal wraps Journal with telemetry.
type InstrumentedJournal struct {
	journal   *Journal
	telemetry *telemetry.Telemetry
}

// NewInstrumentedJournal creates a new instrumented journal.
func NewInstrumentedJournal(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedJournal {
	return &InstrumentedJournal{
		journal:   NewJournal(dbConn),
		telemetry: tel,
	}
}

// Ensure both sides of the journal contract are covered.
var (
	_ journal.Recorder = (*InstrumentedJournal)(nil)
	_ journal.Reader   = (*InstrumentedJournal)(nil)
)

// Append inserts an attempt record with telemetry.
func (j *InstrumentedJournal) Append(ctx context.Context, rec journal.Record) error {
	return j.telemetry.InstrumentDBOperation(ctx, "append_attempt", func(ctx context.Context) error {
		return j.journal.Append(ctx, rec)
	})
}

// Recent queries attempt history with telemetry.
func (j *InstrumentedJournal) Recent(ctx context.Context, limit int) ([]journal.Record, error) {
	var result []journal.Record

	var err error

	instrumentedErr := j.telemetry.InstrumentDBOperation(ctx, "recent_attempts", func(ctx context.Context) error {
		result, err = j.journal.Recent(ctx, limit)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

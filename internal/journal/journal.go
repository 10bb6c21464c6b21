// Package journal keeps an append-only history of download attempts. The
// progress file stays the source of truth for resumability; the journal only
// answers "what happened when", per run.
package journal

import (
	"context"
	"time"
)

// Statuses recorded for an attempt.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Record is one download attempt.
type Record struct {
	RunID    string
	TargetID string
	Path     string
	Group    string
	Status   string
	Reason   string
	Bytes    int64
	Duration time.Duration
	At       time.Time
}

// Recorder appends attempt records.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// Reader queries attempt history for reporting.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}

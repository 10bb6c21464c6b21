package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/drivearc/drivearc/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Journal {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewJournal(db)
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestDB(t)
	ctx := context.Background()

	records := []journal.Record{
		{RunID: "run-1", TargetID: "file-1", Path: "Bangkok/a.pdf", Group: "Bangkok", Status: journal.StatusSuccess, Bytes: 1024, Duration: 1500 * time.Millisecond},
		{RunID: "run-1", TargetID: "file-2", Path: "Bangkok/b.pdf", Group: "Bangkok", Status: journal.StatusFailed, Reason: "Timeout"},
		{RunID: "run-2", TargetID: "file-3", Path: "Phuket/c.pdf", Group: "Phuket", Status: journal.StatusSkipped},
	}
	for _, rec := range records {
		require.NoError(t, j.Append(ctx, rec))
	}

	recent, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	// Newest first.
	assert.Equal(t, "file-3", recent[0].TargetID)
	assert.Equal(t, "file-1", recent[2].TargetID)

	assert.Equal(t, journal.StatusFailed, recent[1].Status)
	assert.Equal(t, "Timeout", recent[1].Reason)
	assert.Equal(t, int64(1024), recent[2].Bytes)
	assert.Equal(t, 1500*time.Millisecond, recent[2].Duration)
	assert.False(t, recent[0].At.IsZero(), "append should stamp the attempt time")
}

func TestRecent_Limit(t *testing.T) {
	j := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(ctx, journal.Record{RunID: "run-1", TargetID: "file", Status: journal.StatusSuccess}))
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRecent_Empty(t *testing.T) {
	j := openTestDB(t)

	recent, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestInstrumentedJournal_NilTelemetry(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	j := NewInstrumentedJournal(db, nil)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, journal.Record{RunID: "run-1", TargetID: "file-1", Status: journal.StatusSuccess}))

	recent, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "file-1", recent[0].TargetID)
}

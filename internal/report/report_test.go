package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/drivearc/drivearc/internal/journal"
	"github.com/drivearc/drivearc/internal/mirror"
	"github.com/drivearc/drivearc/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SamplesAndRecentErrors(t *testing.T) {
	st := progress.State{
		Downloaded: []string{"a", "b", "c"},
		Failed: map[string]progress.FailureRecord{
			"f-3": {Path: "p3", Group: "g", Reason: "Timeout"},
			"f-1": {Path: "p1", Group: "g", Reason: "Not found"},
			"f-2": {Path: "p2", Group: "g", Reason: "Access denied"},
		},
		Errors: []progress.StructuralError{
			{FolderID: "dir-1", Message: "HTTP 500"},
			{FolderID: "dir-2", Message: "HTTP 502"},
			{FolderID: "dir-3", Message: "HTTP 503"},
		},
		LastUpdated: time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC),
	}

	s := Build(st, 2, 2)

	assert.Equal(t, 3, s.Downloaded)
	assert.Equal(t, 3, s.Failed)

	// Sample is sorted by id and capped.
	require.Len(t, s.FailedSample, 2)
	assert.Equal(t, "f-1", s.FailedSample[0].ID)
	assert.Equal(t, "f-2", s.FailedSample[1].ID)

	// Errors keep only the newest entries.
	require.Len(t, s.RecentErrors, 2)
	assert.Equal(t, "dir-2", s.RecentErrors[0].FolderID)
	assert.Equal(t, "dir-3", s.RecentErrors[1].FolderID)
}

func TestBuild_SmallState(t *testing.T) {
	st := progress.State{
		Failed: map[string]progress.FailureRecord{"f-1": {Reason: "Timeout"}},
		Errors: []progress.StructuralError{{FolderID: "d", Message: "boom"}},
	}

	s := Build(st, 10, 10)

	require.Len(t, s.FailedSample, 1)
	require.Len(t, s.RecentErrors, 1)
}

func TestWriteStatus(t *testing.T) {
	s := Status{
		Downloaded: 42,
		Failed:     2,
		FailedSample: []FailedItem{
			{ID: "f-1", FailureRecord: progress.FailureRecord{Path: "d/one.pdf", Group: "Bangkok", Reason: "Timeout"}},
		},
		RecentErrors: []progress.StructuralError{
			{FolderID: "dir-9", Group: "Phuket", Message: "HTTP 500"},
		},
	}

	attempts := []journal.Record{
		{Status: "failed", Group: "Bangkok", Path: "d/one.pdf", Reason: "Timeout", At: time.Now()},
	}

	var buf bytes.Buffer
	WriteStatus(&buf, s, attempts)

	out := buf.String()
	assert.Contains(t, out, "Downloaded: 42 files")
	assert.Contains(t, out, "Failed:     2 files")
	assert.Contains(t, out, "f-1  Bangkok/d/one.pdf  (Timeout)")
	assert.Contains(t, out, "... and 1 more")
	assert.Contains(t, out, "dir-9")
	assert.Contains(t, out, "Recent attempts:")
}

func TestWriteSummary(t *testing.T) {
	sum := mirror.Summary{Total: 10, Downloaded: 7, Skipped: 2, Failed: 1, Bytes: 5 * 1024 * 1024}

	var buf bytes.Buffer
	WriteSummary(&buf, sum, 90*time.Second, "data/download_progress.json")

	out := buf.String()
	assert.Contains(t, out, "total:      10")
	assert.Contains(t, out, "downloaded: 7")
	assert.Contains(t, out, "skipped:    2")
	assert.Contains(t, out, "failed:     1")
	assert.Contains(t, out, "5.2 MB")
	assert.Contains(t, out, "data/download_progress.json")
}

func TestWriteSummary_NoFailures(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, mirror.Summary{Total: 1, Downloaded: 1}, time.Second, "progress.json")

	assert.NotContains(t, buf.String(), "progress.json")
}

package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "download_progress.json")
}

func TestOpen_NoFile(t *testing.T) {
	s, err := Open(storePath(t))
	require.NoError(t, err)

	downloaded, failed := s.Counts()
	assert.Zero(t, downloaded)
	assert.Zero(t, failed)
	assert.True(t, s.Snapshot().LastUpdated.IsZero())
}

func TestMarkDownloaded_Persists(t *testing.T) {
	path := storePath(t)

	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.MarkDownloaded("file-b"))
	require.NoError(t, s.MarkDownloaded("file-a"))
	assert.True(t, s.IsDownloaded("file-a"))

	// A fresh store sees everything the first one recorded.
	reopened, err := Open(path)
	require.NoError(t, err)

	assert.True(t, reopened.IsDownloaded("file-a"))
	assert.True(t, reopened.IsDownloaded("file-b"))

	snap := reopened.Snapshot()
	assert.Equal(t, []string{"file-a", "file-b"}, snap.Downloaded)
	assert.False(t, snap.LastUpdated.IsZero())
}

func TestSuccessClearsFailure(t *testing.T) {
	path := storePath(t)

	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed("file-1", FailureRecord{
		Path:   "Bangkok/district-1/report.pdf",
		Group:  "Bangkok",
		Reason: "Timeout",
	}))
	assert.True(t, s.HasFailed("file-1"))

	require.NoError(t, s.MarkDownloaded("file-1"))
	assert.False(t, s.HasFailed("file-1"))
	assert.True(t, s.IsDownloaded("file-1"))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.False(t, reopened.HasFailed("file-1"))
	assert.True(t, reopened.IsDownloaded("file-1"))
}

func TestMarkFailed_StampsAttemptTime(t *testing.T) {
	s, err := Open(storePath(t))
	require.NoError(t, err)

	before := time.Now()
	require.NoError(t, s.MarkFailed("file-1", FailureRecord{Path: "p", Group: "g", Reason: "Not found"}))

	rec := s.Snapshot().Failed["file-1"]
	assert.False(t, rec.LastAttempt.Before(before))
	assert.Equal(t, "Not found", rec.Reason)
}

func TestOpen_LegacyFailedList(t *testing.T) {
	path := storePath(t)
	legacy := `{
		"downloaded": ["file-1", "file-2"],
		"failed": ["file-3", "file-4"],
		"errors": [],
		"last_updated": "2023-05-20T10:00:00"
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	s, err := Open(path)
	require.NoError(t, err)

	downloaded, failed := s.Counts()
	assert.Equal(t, 2, downloaded)
	assert.Zero(t, failed, "legacy failed list should migrate to an empty map")
	assert.False(t, s.Snapshot().LastUpdated.IsZero(), "bare ISO timestamp should parse")
}

func TestOpen_DownloadedWinsOverStaleFailure(t *testing.T) {
	path := storePath(t)
	state := `{
		"downloaded": ["file-1"],
		"failed": {"file-1": {"path": "p", "group": "g", "error": "Timeout", "last_attempt": "2023-05-20T10:00:00Z"}},
		"errors": [],
		"last_updated": null
	}`
	require.NoError(t, os.WriteFile(path, []byte(state), 0644))

	s, err := Open(path)
	require.NoError(t, err)

	assert.True(t, s.IsDownloaded("file-1"))
	assert.False(t, s.HasFailed("file-1"))
}

func TestOpen_RejectsMalformedState(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: `{"downloaded": [`},
		{name: "downloaded not a list", content: `{"downloaded": {"a": 1}, "failed": {}}`},
		{name: "failed not list or map", content: `{"downloaded": [], "failed": 42}`},
		{name: "failed record wrong shape", content: `{"downloaded": [], "failed": {"x": "oops"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := storePath(t)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Open(path)
			require.Error(t, err)
		})
	}
}

func TestMarkError_AppendOnly(t *testing.T) {
	path := storePath(t)

	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.MarkError(StructuralError{FolderID: "f-1", Group: "Bangkok", Message: "HTTP 500"}))
	require.NoError(t, s.MarkError(StructuralError{FolderID: "f-2", Group: "Phuket", Message: "HTTP 502"}))

	reopened, err := Open(path)
	require.NoError(t, err)

	snap := reopened.Snapshot()
	require.Len(t, snap.Errors, 2)
	assert.Equal(t, "f-1", snap.Errors[0].FolderID)
	assert.Equal(t, "HTTP 502", snap.Errors[1].Message)
	assert.False(t, snap.Errors[0].Time.IsZero())
}

func TestReset(t *testing.T) {
	path := storePath(t)

	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.MarkDownloaded("file-1"))
	require.NoError(t, s.MarkFailed("file-2", FailureRecord{Reason: "Timeout"}))
	require.NoError(t, s.Reset())

	downloaded, failed := s.Counts()
	assert.Zero(t, downloaded)
	assert.Zero(t, failed)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "reset should delete the progress file")

	// Resetting again is fine even though the file is already gone.
	require.NoError(t, s.Reset())
}

func TestOnDiskShape(t *testing.T) {
	path := storePath(t)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.MarkDownloaded("file-1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	// Empty collections serialize as [] and {}, not null, so other tooling
	// reading the file never needs nil checks.
	assert.JSONEq(t, `["file-1"]`, string(doc["downloaded"]))
	assert.JSONEq(t, `{}`, string(doc["failed"]))
	assert.JSONEq(t, `[]`, string(doc["errors"]))
}

func TestConcurrentMarks(t *testing.T) {
	path := storePath(t)

	s, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			id := fmt.Sprintf("file-%d", n)
			if n%4 == 0 {
				_ = s.MarkFailed(id, FailureRecord{Reason: "Timeout"})
			} else {
				_ = s.MarkDownloaded(id)
			}
		}(i)
	}
	wg.Wait()

	downloaded, failed := s.Counts()
	assert.Equal(t, 12, downloaded)
	assert.Equal(t, 4, failed)

	reopened, err := Open(path)
	require.NoError(t, err)

	d2, f2 := reopened.Counts()
	assert.Equal(t, downloaded, d2)
	assert.Equal(t, failed, f2)
}

// Package progress owns the durable download-progress file. The file is the
// single source of truth for resumability: ids in downloaded are never
// re-fetched, ids in failed keep the reason for the last attempt, and the
// errors list records listing problems that hid parts of the tree.
package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FailureRecord describes the most recent failed attempt for one file.
type FailureRecord struct {
	Path        string    `json:"path"`
	Group       string    `json:"group"`
	Reason      string    `json:"error"`
	LastAttempt time.Time `json:"last_attempt"`
}

// StructuralError is a listing failure that may have hidden files from the
// run. Entries are append-only.
type StructuralError struct {
	Time     time.Time `json:"time"`
	FolderID string    `json:"folder_id"`
	Group    string    `json:"group"`
	Path     string    `json:"path,omitempty"`
	Message  string    `json:"error"`
}

// State is a point-in-time copy of the store, also the on-disk document.
type State struct {
	Downloaded  []string                 `json:"downloaded"`
	Failed      map[string]FailureRecord `json:"failed"`
	Errors      []StructuralError        `json:"errors"`
	LastUpdated time.Time                `json:"last_updated"`
}

// Store keeps the progress state in memory behind a mutex and mirrors every
// mutation to disk before returning. An id lives in downloaded or in failed,
// never both; a success clears the failure entry.
type Store struct {
	path string

	mu          sync.Mutex
	downloaded  map[string]struct{}
	failed      map[string]FailureRecord
	errors      []StructuralError
	lastUpdated time.Time
}

type diskState struct {
	Downloaded  []string          `json:"downloaded"`
	Failed      json.RawMessage   `json:"failed"`
	Errors      []StructuralError `json:"errors"`
	LastUpdated json.RawMessage   `json:"last_updated"`
}

// Open loads the progress file, or starts empty when it does not exist yet.
// A file that exists but does not match the expected shape is an error; a
// partial resume from a corrupt file would silently lose history.
func Open(path string) (*Store, error) {
	s := &Store{
		path:       path,
		downloaded: make(map[string]struct{}),
		failed:     make(map[string]FailureRecord),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}

	var disk diskState
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, fmt.Errorf("failed to parse progress file %s: %w", path, err)
	}

	for _, id := range disk.Downloaded {
		s.downloaded[id] = struct{}{}
	}

	failed, err := decodeFailed(disk.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse progress file %s: %w", path, err)
	}
	s.failed = failed

	// Downloaded wins over a stale failure entry.
	for id := range s.downloaded {
		delete(s.failed, id)
	}

	s.errors = disk.Errors
	s.lastUpdated = decodeTimestamp(disk.LastUpdated)

	return s, nil
}

// decodeFailed handles the historical format drift of the failed field:
// current files carry a map, the oldest ones carried a bare id list without
// reasons. The legacy list migrates to an empty map.
func decodeFailed(raw json.RawMessage) (map[string]FailureRecord, error) {
	failed := make(map[string]FailureRecord)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return failed, nil
	}
	if trimmed[0] == '[' {
		return failed, nil
	}

	if err := json.Unmarshal(trimmed, &failed); err != nil {
		return nil, fmt.Errorf("failed map: %w", err)
	}

	return failed, nil
}

// decodeTimestamp is lenient: last_updated is display metadata, and files
// written by earlier tooling carry bare ISO timestamps without a zone.
func decodeTimestamp(raw json.RawMessage) time.Time {
	var ts string
	if err := json.Unmarshal(bytes.TrimSpace(raw), &ts); err != nil || ts == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}

	return time.Time{}
}

// MarkDownloaded records a completed file and clears any failure entry for it.
func (s *Store) MarkDownloaded(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.downloaded[id] = struct{}{}
	delete(s.failed, id)

	return s.save()
}

// MarkFailed records the latest failed attempt for a file.
func (s *Store) MarkFailed(id string, rec FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.LastAttempt.IsZero() {
		rec.LastAttempt = time.Now()
	}

	delete(s.downloaded, id)
	s.failed[id] = rec

	return s.save()
}

// MarkError appends a structural listing error.
func (s *Store) MarkError(e StructuralError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.errors = append(s.errors, e)

	return s.save()
}

func (s *Store) IsDownloaded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.downloaded[id]
	return ok
}

func (s *Store) HasFailed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.failed[id]
	return ok
}

// Counts returns the number of downloaded and failed ids.
func (s *Store) Counts() (downloaded, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.downloaded), len(s.failed)
}

// Snapshot returns a copy of the current state, with downloaded ids sorted.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := State{
		Downloaded:  make([]string, 0, len(s.downloaded)),
		Failed:      make(map[string]FailureRecord, len(s.failed)),
		Errors:      make([]StructuralError, 0, len(s.errors)),
		LastUpdated: s.lastUpdated,
	}

	for id := range s.downloaded {
		st.Downloaded = append(st.Downloaded, id)
	}
	sort.Strings(st.Downloaded)

	for id, rec := range s.failed {
		st.Failed[id] = rec
	}
	st.Errors = append(st.Errors, s.errors...)

	return st
}

// Reset clears the in-memory state and deletes the progress file.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.downloaded = make(map[string]struct{})
	s.failed = make(map[string]FailureRecord)
	s.errors = nil
	s.lastUpdated = time.Time{}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove progress file: %w", err)
	}

	return nil
}

// save writes the whole state through a temp file rename so a crash mid-write
// never truncates the previous progress. Callers hold the mutex.
func (s *Store) save() error {
	s.lastUpdated = time.Now()

	data, err := json.MarshalIndent(s.snapshotLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create progress dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".progress-*")
	if err != nil {
		return fmt.Errorf("failed to create temp progress file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to close temp progress file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace progress file: %w", err)
	}

	return nil
}

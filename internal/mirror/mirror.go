// Package mirror is the download engine: it walks remote folder trees into
// flat target lists, fetches each target to local disk and drives a bounded
// worker pool that records every outcome durably before moving on.
package mirror

import (
	"errors"
	"time"
)

// Target is one remote file scheduled for download.
type Target struct {
	ID           string
	RelativePath string // slash-separated, under the group directory
	Group        string
	SizeHint     int64 // declared size; zero when the provider omits it
}

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Outcome is the result of one fetch attempt.
type Outcome struct {
	Target   Target
	Status   string
	Reason   string
	Bytes    int64
	Duration time.Duration
}

// ErrRateLimited aborts a whole run: the provider is throttling us and every
// further request digs the hole deeper. The run stays resumable.
var ErrRateLimited = errors.New("rate limited by provider")

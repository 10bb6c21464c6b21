// Package report renders the durable progress state and run counters for
// humans. It is read-only over the progress store and the attempt journal.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/drivearc/drivearc/internal/journal"
	"github.com/drivearc/drivearc/internal/mirror"
	"github.com/drivearc/drivearc/internal/progress"
	"github.com/dustin/go-humanize"
)

// FailedItem is one failed entry with its id attached, for display.
type FailedItem struct {
	ID string `json:"id"`
	progress.FailureRecord
}

// Status summarizes the durable state for the status command and endpoint.
type Status struct {
	Downloaded   int                        `json:"downloaded"`
	Failed       int                        `json:"failed"`
	FailedSample []FailedItem               `json:"failed_sample,omitempty"`
	RecentErrors []progress.StructuralError `json:"recent_errors,omitempty"`
	LastUpdated  time.Time                  `json:"last_updated"`
}

// Build assembles a Status from a state snapshot, keeping at most sampleSize
// failed entries (sorted by id, so output is stable) and the errorCount most
// recent structural errors.
func Build(st progress.State, sampleSize, errorCount int) Status {
	s := Status{
		Downloaded:  len(st.Downloaded),
		Failed:      len(st.Failed),
		LastUpdated: st.LastUpdated,
	}

	ids := make([]string, 0, len(st.Failed))
	for id := range st.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) > sampleSize {
		ids = ids[:sampleSize]
	}

	for _, id := range ids {
		s.FailedSample = append(s.FailedSample, FailedItem{ID: id, FailureRecord: st.Failed[id]})
	}

	if n := len(st.Errors); n > errorCount {
		s.RecentErrors = append(s.RecentErrors, st.Errors[n-errorCount:]...)
	} else {
		s.RecentErrors = append(s.RecentErrors, st.Errors...)
	}

	return s
}

// WriteStatus prints a Status and, when available, the latest journal
// attempts.
func WriteStatus(w io.Writer, s Status, attempts []journal.Record) {
	fmt.Fprintf(w, "Downloaded: %d files\n", s.Downloaded)
	fmt.Fprintf(w, "Failed:     %d files\n", s.Failed)

	if !s.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Updated:    %s\n", s.LastUpdated.Format(time.RFC3339))
	}

	if len(s.FailedSample) > 0 {
		fmt.Fprintln(w, "\nFailed files:")

		for _, f := range s.FailedSample {
			fmt.Fprintf(w, "  %s  %s/%s  (%s)\n", f.ID, f.Group, f.Path, f.Reason)
		}

		if s.Failed > len(s.FailedSample) {
			fmt.Fprintf(w, "  ... and %d more\n", s.Failed-len(s.FailedSample))
		}
	}

	if len(s.RecentErrors) > 0 {
		fmt.Fprintln(w, "\nRecent listing errors:")

		for _, e := range s.RecentErrors {
			fmt.Fprintf(w, "  %s  folder=%s group=%s  %s\n",
				e.Time.Format(time.RFC3339), e.FolderID, e.Group, e.Message)
		}
	}

	if len(attempts) > 0 {
		fmt.Fprintln(w, "\nRecent attempts:")

		for _, a := range attempts {
			fmt.Fprintf(w, "  %s  %-7s  %s/%s", a.At.Format(time.RFC3339), a.Status, a.Group, a.Path)

			if a.Reason != "" {
				fmt.Fprintf(w, "  (%s)", a.Reason)
			}

			fmt.Fprintln(w)
		}
	}
}

// WriteSummary prints the final run counters and where failures landed.
func WriteSummary(w io.Writer, sum mirror.Summary, elapsed time.Duration, progressPath string) {
	fmt.Fprintf(w, "Run finished in %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(w, "  total:      %d\n", sum.Total)
	fmt.Fprintf(w, "  downloaded: %d\n", sum.Downloaded)
	fmt.Fprintf(w, "  skipped:    %d\n", sum.Skipped)
	fmt.Fprintf(w, "  failed:     %d\n", sum.Failed)
	fmt.Fprintf(w, "  bytes:      %s\n", humanize.Bytes(uint64(sum.Bytes)))

	if sum.Failed > 0 {
		fmt.Fprintf(w, "Failures and listing errors are recorded in %s\n", progressPath)
	}
}

package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/drivearc/drivearc/internal/remote"
	"github.com/dustin/go-humanize"
)

const (
	dirPerm = 0755

	// progressInterval is how many bytes pass between progress log lines.
	progressInterval = 10 * 1024 * 1024
)

// Fetcher transfers single targets to local disk. Fetch never panics or
// returns an error across its boundary; every result, including a panic in a
// provider client, becomes a failed Outcome with a reason.
type Fetcher struct {
	client  remote.Client
	root    string
	timeout time.Duration
}

func NewFetcher(client remote.Client, destinationRoot string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  client,
		root:    destinationRoot,
		timeout: timeout,
	}
}

// LocalPath resolves where a target lands on disk.
func (f *Fetcher) LocalPath(t Target) string {
	return filepath.Join(f.root, t.Group, filepath.FromSlash(t.RelativePath))
}

// Fetch downloads one target. A non-empty file already at the destination is
// skipped without a network call, so a lost progress file never forces
// re-downloading what is already on disk.
func (f *Fetcher) Fetch(ctx context.Context, t Target) (out Outcome) {
	start := time.Now()
	out = Outcome{Target: t}

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Reason = fmt.Sprintf("panic: %v", r)
		}

		out.Duration = time.Since(start)
	}()

	localPath := f.LocalPath(t)

	if info, err := os.Stat(localPath); err == nil && info.Size() > 0 {
		out.Status = StatusSkipped

		return out
	}

	if err := os.MkdirAll(filepath.Dir(localPath), dirPerm); err != nil {
		out.Status = StatusFailed
		out.Reason = remote.Classify(err)

		return out
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	written, err := f.transfer(ctx, t, localPath)
	if err != nil {
		// A truncated file would pass the idempotence check next run.
		f.removePartial(ctx, localPath)

		out.Status = StatusFailed
		out.Reason = remote.Classify(err)

		return out
	}

	if info, err := os.Stat(localPath); err != nil || info.Size() == 0 {
		f.removePartial(ctx, localPath)

		out.Status = StatusFailed
		out.Reason = remote.ReasonEmptyFile

		return out
	}

	out.Status = StatusSuccess
	out.Bytes = written

	return out
}

func (f *Fetcher) transfer(ctx context.Context, t Target, localPath string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	body, err := f.client.Open(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create target file: %w", err)
	}

	pr := newProgressReader(body, t.SizeHint, progressInterval, func(written, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"path", t.RelativePath,
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))
		} else {
			logger.Debug("download progress",
				"path", t.RelativePath,
				"downloaded", humanize.Bytes(uint64(written)))
		}
	})

	written, copyErr := io.Copy(dst, pr)

	// Close before validating size so buffered bytes reach the file.
	if closeErr := dst.Close(); copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("failed to close target file: %w", closeErr)
	}

	if copyErr != nil {
		return written, fmt.Errorf("failed to copy file: %w", copyErr)
	}

	return written, nil
}

func (f *Fetcher) removePartial(ctx context.Context, localPath string) {
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		logctx.LoggerFromContext(ctx).Error("failed to remove partial file",
			"path", localPath, "err", err)
	}
}

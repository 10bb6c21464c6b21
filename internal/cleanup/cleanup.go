// Package cleanup removes debris from hard-crashed runs.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/drivearc/drivearc/internal/logctx"
)

// PruneEmptyFiles walks the destination root and deletes zero-byte files. A
// crash between create and first write can leave them behind; the download
// engine already treats them as absent, pruning just keeps the tree clean.
// Returns the number of files removed.
func PruneEmptyFiles(ctx context.Context, root string) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	removed := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if info.Size() != 0 {
			return nil
		}

		if err := os.Remove(path); err != nil {
			logger.Error("failed to remove empty file", "file", path, "err", err)

			return err
		}

		logger.Info("removed empty file", "file", path)
		removed++

		return nil
	})

	// A missing root means nothing was ever downloaded.
	if errors.Is(err, fs.ErrNotExist) {
		return removed, nil
	}

	return removed, err
}

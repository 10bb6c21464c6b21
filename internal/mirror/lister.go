package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/drivearc/drivearc/internal/index"
	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/drivearc/drivearc/internal/progress"
	"github.com/drivearc/drivearc/internal/remote"
	"github.com/drivearc/drivearc/internal/telemetry"
)

// Lister enumerates every file under a remote folder tree. Listing is always
// re-run from scratch; only downloads resume between invocations.
type Lister struct {
	client  remote.Client
	store   *progress.Store
	tel     *telemetry.Telemetry
	timeout time.Duration
}

func NewLister(client remote.Client, store *progress.Store, tel *telemetry.Telemetry, timeout time.Duration) *Lister {
	return &Lister{
		client:  client,
		store:   store,
		tel:     tel,
		timeout: timeout,
	}
}

// frame is one folder waiting to be listed. An explicit stack instead of
// recursion keeps pathological folder depth from exhausting the goroutine
// stack.
type frame struct {
	id   string
	path string
}

// List walks the tree rooted at folderID and returns one Target per file
// found. A folder whose listing fails is recorded as a structural error and
// its subtree skipped; files found before the failure are kept. A rate-limit
// response aborts the walk with ErrRateLimited.
func (l *Lister) List(ctx context.Context, folderID, group string) ([]Target, error) {
	logger := logctx.LoggerFromContext(ctx).With("group", group)

	var targets []Target

	stack := []frame{{id: folderID}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := ctx.Err(); err != nil {
			return targets, err
		}

		cursor := ""

		for {
			page, err := l.listPage(ctx, cur.id, cursor)
			if err != nil {
				if remote.IsRateLimitError(err) {
					return targets, fmt.Errorf("%w: listing folder %s: %s", ErrRateLimited, cur.id, err)
				}

				logger.Error("failed to list folder, skipping subtree",
					"folder_id", cur.id, "path", cur.path, "err", err)

				if serr := l.store.MarkError(progress.StructuralError{
					FolderID: cur.id,
					Group:    group,
					Path:     cur.path,
					Message:  err.Error(),
				}); serr != nil {
					logger.Error("failed to record listing error", "err", serr)
				}

				break
			}

			for _, e := range page.Entries {
				childPath := index.Sanitize(e.Name)
				if cur.path != "" {
					childPath = cur.path + "/" + childPath
				}

				if e.Folder {
					stack = append(stack, frame{id: e.ID, path: childPath})

					continue
				}

				targets = append(targets, Target{
					ID:           e.ID,
					RelativePath: childPath,
					Group:        group,
					SizeHint:     e.Size,
				})
			}

			if page.NextCursor == "" {
				break
			}

			cursor = page.NextCursor
		}
	}

	logger.Info("listed folder tree", "root_folder_id", folderID, "files", len(targets))

	return targets, nil
}

// listPage requests one page of children under its own deadline.
func (l *Lister) listPage(ctx context.Context, folderID, cursor string) (remote.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var page remote.Page

	err := l.tel.InstrumentListing(ctx, func(ctx context.Context) error {
		var err error
		page, err = l.client.ListFolder(ctx, folderID, cursor)

		return err
	})

	return page, err
}

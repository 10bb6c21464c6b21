package remote

import (
	"context"
	"io"
)

// Entry is a single child of a remote folder.
type Entry struct {
	ID     string
	Name   string
	Folder bool
	Size   int64
}

// Page holds one page of folder children. NextCursor is empty on the last page.
type Page struct {
	Entries    []Entry
	NextCursor string
}

// Client is the provider surface the mirror engine runs against: paged folder
// listing and per-file streaming reads. Implementations live in the drive and
// putio subpackages.
type Client interface {
	ListFolder(ctx context.Context, folderID, cursor string) (Page, error)
	Open(ctx context.Context, fileID string) (io.ReadCloser, error)
}

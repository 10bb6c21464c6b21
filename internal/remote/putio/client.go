// Package putio implements the remote.Client interface on top of the Put.io
// API. Folder ids are the numeric Put.io file ids rendered as strings; "0"
// (or empty) is the account root.
package putio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/drivearc/drivearc/internal/remote"
	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"
)

type Client struct {
	putioClient *putio.Client
	httpClient  *http.Client
}

func NewClient(token string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)

	return &Client{
		putioClient: putio.NewClient(oauthClient),
		httpClient:  &http.Client{},
	}
}

// Ensure Client implements remote.Client
var _ remote.Client = (*Client)(nil)

// Authenticate verifies the token by fetching the account info.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	user, err := c.putioClient.Account.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get account info: %w", err)
	}

	logger.InfoContext(ctx, "authenticated with Put.io", "user", user.Username)

	return nil
}

// ListFolder returns the folder's children. Put.io returns whole folders in
// one response, so the cursor is unused and NextCursor is always empty.
func (c *Client) ListFolder(ctx context.Context, folderID, _ string) (remote.Page, error) {
	id, err := parseID(folderID)
	if err != nil {
		return remote.Page{}, err
	}

	files, _, err := c.putioClient.Files.List(ctx, id)
	if err != nil {
		return remote.Page{}, asStatusError("list_folder", err)
	}

	var page remote.Page
	for _, f := range files {
		page.Entries = append(page.Entries, remote.Entry{
			ID:     strconv.FormatInt(f.ID, 10),
			Name:   f.Name,
			Folder: f.IsDir(),
			Size:   f.Size,
		})
	}

	return page, nil
}

// Open resolves the file's download URL and streams its content.
func (c *Client) Open(ctx context.Context, fileID string) (io.ReadCloser, error) {
	id, err := parseID(fileID)
	if err != nil {
		return nil, err
	}

	downloadURL, err := c.putioClient.Files.URL(ctx, id, false)
	if err != nil {
		return nil, asStatusError("fetch_file", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &remote.StatusError{Operation: "fetch_file", StatusCode: resp.StatusCode}
	}

	return resp.Body, nil
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("putio ids are numeric, got %q: %w", s, err)
	}

	return id, nil
}

// asStatusError converts go-putio's typed response error so status-based
// reason classification works for this provider too.
func asStatusError(operation string, err error) error {
	var perr *putio.ErrorResponse
	if errors.As(err, &perr) && perr.Response != nil {
		return &remote.StatusError{
			Operation:  operation,
			StatusCode: perr.Response.StatusCode,
			Message:    perr.Message,
			Err:        err,
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}

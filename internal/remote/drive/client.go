// Package drive implements the remote.Client interface over the Google Drive
// v3 REST surface with API-key auth. Folder traversal only needs two calls:
// a paged files query scoped to a parent, and the alt=media content fetch.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/drivearc/drivearc/internal/remote"
)

const (
	// DefaultBaseURL is the public Drive v3 API root.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"

	// pageSize is the maximum the files endpoint allows per page.
	pageSize = "1000"
)

type Client struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at a different API root (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.BaseURL = baseURL
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds a Drive client. Request deadlines come from the caller's
// context, so the HTTP client itself carries no timeout.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Ensure Client implements remote.Client
var _ remote.Client = (*Client)(nil)

// fileResource is the subset of the Drive file resource we request. Drive
// serializes int64 fields as JSON strings.
type fileResource struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,string"`
}

type fileList struct {
	NextPageToken string         `json:"nextPageToken"`
	Files         []fileResource `json:"files"`
}

// ListFolder returns one page of the folder's direct children.
func (c *Client) ListFolder(ctx context.Context, folderID, cursor string) (remote.Page, error) {
	logger := logctx.LoggerFromContext(ctx).With("folder_id", folderID)

	params := url.Values{}
	params.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
	params.Set("pageSize", pageSize)
	params.Set("fields", "nextPageToken, files(id, name, mimeType, size)")
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")
	params.Set("key", c.apiKey)
	if cursor != "" {
		params.Set("pageToken", cursor)
	}

	endpoint := fmt.Sprintf("%s/files?%s", strings.TrimRight(c.BaseURL, "/"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return remote.Page{}, fmt.Errorf("failed to create list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return remote.Page{}, fmt.Errorf("failed to list folder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return remote.Page{}, statusError("list_folder", resp)
	}

	var list fileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return remote.Page{}, fmt.Errorf("failed to decode file list: %w", err)
	}

	page := remote.Page{NextCursor: list.NextPageToken}
	for _, f := range list.Files {
		page.Entries = append(page.Entries, remote.Entry{
			ID:     f.ID,
			Name:   f.Name,
			Folder: f.MimeType == folderMimeType,
			Size:   f.Size,
		})
	}

	logger.Debug("listed folder page", "entries", len(page.Entries), "more", page.NextCursor != "")

	return page, nil
}

// Open streams the file content. The caller owns the returned body.
func (c *Client) Open(ctx context.Context, fileID string) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("alt", "media")
	params.Set("key", c.apiKey)

	endpoint := fmt.Sprintf("%s/files/%s?%s",
		strings.TrimRight(c.BaseURL, "/"), url.PathEscape(fileID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("fetch_file", resp)
	}

	return resp.Body, nil
}

// statusError reads a bounded chunk of the error body and extracts the API
// message when the body carries Drive's {"error": {"message": ...}} envelope.
func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	msg := strings.TrimSpace(string(body))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	return &remote.StatusError{Operation: operation, StatusCode: resp.StatusCode, Message: msg}
}

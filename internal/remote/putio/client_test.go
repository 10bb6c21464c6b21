package putio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/drivearc/drivearc/internal/remote"
	putio "github.com/putdotio/go-putio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	goputioClient := putio.NewClient(nil)
	u, _ := url.Parse(serverURL)
	goputioClient.BaseURL = u

	return &Client{putioClient: goputioClient, httpClient: &http.Client{}}
}

func TestListFolder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/files/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("parent_id"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"files": [
				{"id": 10, "name": "subfolder", "size": 0, "file_type": "FOLDER", "content_type": "application/x-directory"},
				{"id": 11, "name": "ballot.pdf", "size": 2048, "file_type": "PDF", "content_type": "application/pdf"}
			],
			"parent": {"id": 7, "name": "root", "size": 0, "file_type": "FOLDER", "content_type": "application/x-directory"},
			"status": "OK"
		}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)

	page, err := client.ListFolder(context.Background(), "7", "")
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Empty(t, page.NextCursor)

	assert.Equal(t, "10", page.Entries[0].ID)
	assert.True(t, page.Entries[0].Folder)

	assert.Equal(t, "11", page.Entries[1].ID)
	assert.False(t, page.Entries[1].Folder)
	assert.Equal(t, int64(2048), page.Entries[1].Size)
}

func TestListFolder_NonNumericID(t *testing.T) {
	client := newTestClient("http://unused")

	_, err := client.ListFolder(context.Background(), "1AbC-drive-style-id", "")
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	content := []byte("%PDF-1.4 tally sheet")

	mux := http.NewServeMux()

	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v2/files/42/url", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"url": %q, "status": "OK"}`, server.URL+"/content/42")
	})
	mux.HandleFunc("/content/42", func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	})

	client := newTestClient(server.URL)

	rc, err := client.Open(context.Background(), "42")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestOpen_RateLimited(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/files/99/url", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error_type": "RATE_LIMIT", "error_message": "Rate limit exceeded", "status": "ERROR"}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Open(context.Background(), "99")
	require.Error(t, err)
	assert.True(t, remote.IsRateLimitError(err))
}

func TestOpen_ContentFetchFailure(t *testing.T) {
	mux := http.NewServeMux()

	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v2/files/42/url", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"url": %q, "status": "OK"}`, server.URL+"/content/42")
	})
	mux.HandleFunc("/content/42", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	client := newTestClient(server.URL)

	_, err := client.Open(context.Background(), "42")
	require.Error(t, err)
	assert.Equal(t, remote.ReasonAccessDenied, remote.Classify(err))
}

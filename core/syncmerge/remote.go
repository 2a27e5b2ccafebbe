package syncmerge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/Lectern/core/errors"
)

// Remote stores and retrieves the shared sync blob. Fetch reports an error
// satisfying errors.ErrNotFound when no snapshot has been pushed yet; that is
// the normal first-sync case, not a failure.
type Remote interface {
	Fetch(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, blob []byte) error
}

// FSRemote keeps the sync blob in a file, typically on a network mount or a
// synced folder.
type FSRemote struct {
	path string
}

// NewFSRemote creates a file-backed remote at path.
func NewFSRemote(path string) *FSRemote {
	return &FSRemote{path: path}
}

func (r *FSRemote) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewSync("fetch", true, err)
	}
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("sync snapshot", r.path)
	}
	if err != nil {
		return nil, errors.NewSync("fetch", true, err)
	}
	return data, nil
}

// Store writes the blob atomically: a rename over the old snapshot means a
// concurrent reader never sees a torn file.
func (r *FSRemote) Store(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.NewSync("store", true, err)
	}
	tmp := fmt.Sprintf("%s.tmp-%d", r.path, time.Now().UnixNano())
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.NewSync("store", true, err)
	}
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return errors.NewSync("store", true, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return errors.NewSync("store", true, err)
	}
	return nil
}

// HTTPRemote keeps the sync blob behind a GET/PUT endpoint.
type HTTPRemote struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPRemote creates an HTTP-backed remote. An empty token sends no
// authorization header; client may be nil for a default with a sane timeout.
func NewHTTPRemote(url, token string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRemote{url: url, token: token, client: client}
}

func (r *HTTPRemote) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, errors.NewSync("fetch", false, err)
	}
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewSync("fetch", true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewNotFound("sync snapshot", r.url)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.NewSync("fetch", resp.StatusCode >= 500,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewSync("fetch", true, err)
	}
	return data, nil
}

func (r *HTTPRemote) Store(ctx context.Context, blob []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.url, bytes.NewReader(blob))
	if err != nil {
		return errors.NewSync("store", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	r.authorize(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.NewSync("store", true, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return errors.NewSync("store", resp.StatusCode >= 500,
			fmt.Errorf("unexpected status %s", resp.Status))
	}
	return nil
}

func (r *HTTPRemote) authorize(req *http.Request) {
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
}

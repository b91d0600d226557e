package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Mirror uploads artifact bytes to a remote HTTP blob endpoint so downloads
// can be served off-box. All mirror operations are best-effort from the
// pipeline's point of view; a nil Mirror is a no-op.
type Mirror struct {
	base   string
	token  string
	client *http.Client
}

// NewMirror returns a mirror client, or nil when baseURL is empty.
func NewMirror(baseURL, token string) *Mirror {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &Mirror{
		base:   baseURL,
		token:  token,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Enabled reports whether a remote mirror is configured.
func (m *Mirror) Enabled() bool { return m != nil }

func (m *Mirror) objectURL(name string) string {
	return m.base + "/" + url.PathEscape(name)
}

// Upload PUTs the artifact bytes and returns the public object URL.
func (m *Mirror) Upload(ctx context.Context, name string, body io.Reader, size int64) (string, error) {
	if m == nil {
		return "", nil
	}
	target := m.objectURL(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/vnd.android.package-archive")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("mirror upload %s: status %d", name, resp.StatusCode)
	}
	return target, nil
}

// Delete removes the remote object. A 404 counts as success.
func (m *Mirror) Delete(ctx context.Context, name string) error {
	if m == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, m.objectURL(name), nil)
	if err != nil {
		return err
	}
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("mirror delete %s: status %d", name, resp.StatusCode)
}

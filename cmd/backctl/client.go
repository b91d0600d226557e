package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vikramgaru01/back/core/registry"
)

// client is a thin HTTP client for the backend API.
type client struct {
	base string
	user string
	http *http.Client
}

func newClient(base, user string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		user: user,
		// Submissions run the whole pipeline synchronously.
		http: &http.Client{Timeout: 20 * time.Minute},
	}
}

func (c *client) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	return c.http.Do(req)
}

func (c *client) decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Detail)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) Submit(payload []byte) (registry.Record, error) {
	resp, err := c.do(http.MethodPost, "/api/apks", bytes.NewReader(payload))
	if err != nil {
		return registry.Record{}, err
	}
	var rec registry.Record
	if err := c.decode(resp, &rec); err != nil {
		return registry.Record{}, err
	}
	return rec, nil
}

func (c *client) List() ([]registry.Record, error) {
	resp, err := c.do(http.MethodGet, "/api/apks", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		APKs []registry.Record `json:"apks"`
	}
	if err := c.decode(resp, &body); err != nil {
		return nil, err
	}
	return body.APKs, nil
}

// Download fetches the artifact bytes, following a mirror redirect when the
// server issues one, and writes them to out (or the server-chosen name).
func (c *client) Download(artifactID, out string) (string, error) {
	resp, err := c.do(http.MethodGet, "/api/apks/"+artifactID+"/download", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return "", fmt.Errorf("%s: %s", apiErr.Error, apiErr.Detail)
		}
		return "", fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == "" {
		out = artifactID + ".apk"
		if cd := resp.Header.Get("Content-Disposition"); cd != "" {
			if i := strings.Index(cd, `filename="`); i >= 0 {
				rest := cd[i+len(`filename="`):]
				if j := strings.Index(rest, `"`); j > 0 {
					out = rest[:j]
				}
			}
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return out, nil
}

func (c *client) Delete(artifactID string) error {
	resp, err := c.do(http.MethodDelete, "/api/apks/"+artifactID, nil)
	if err != nil {
		return err
	}
	return c.decode(resp, nil)
}

func (c *client) Health() (string, error) {
	resp, err := c.do(http.MethodGet, "/api/health", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Status == "" {
		return "", fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return body.Status, nil
}

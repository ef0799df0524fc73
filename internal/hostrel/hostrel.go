// Package hostrel publishes hosted releases on GitHub for a tagged version.
// It talks to the REST API directly and resolves credentials the same way
// the rest of the git tooling does: environment token first, then the gh
// CLI's stored credentials.
package hostrel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	apiURL       = "https://api.github.com"
	acceptHeader = "application/vnd.github.v3+json"
)

var ownerRepoPrefix = regexp.MustCompile(`^.*github\.com[:/]`)

// ParseOwnerRepo derives "owner", "repo" from a git remote URL, either the
// SSH (git@github.com:owner/repo.git) or HTTPS form.
func ParseOwnerRepo(remoteURL string) (owner, repo string, err error) {
	trimmed := ownerRepoPrefix.ReplaceAllString(strings.TrimSpace(remoteURL), "")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	trimmed = strings.Trim(trimmed, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot derive owner/repo from remote URL %q", remoteURL)
	}
	return parts[0], parts[1], nil
}

// Client is a minimal GitHub releases API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds a client with the resolved token. A missing token is not
// an error until a request is attempted.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    apiURL,
		token:      resolveToken(),
	}
}

// NewClientWithBase is used by tests to point at a fake API server.
func NewClientWithBase(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

// resolveToken checks the conventional environment variables, then falls
// back to the gh CLI's stored credentials.
func resolveToken() string {
	for _, env := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if t := os.Getenv(env); t != "" {
			return t
		}
	}
	out, err := exec.Command("gh", "auth", "token").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

type release struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptHeader)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DeleteByTag removes an existing release for tag. A release that does not
// exist is not an error; the caller treats deletion as best-effort anyway.
func (c *Client) DeleteByTag(ctx context.Context, owner, repo, tag string) error {
	req, err := c.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/releases/tags/%s", owner, repo, tag), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lookup release for tag %s: %s", tag, resp.Status)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return fmt.Errorf("decode release: %w", err)
	}

	req, err = c.newRequest(ctx, http.MethodDelete,
		fmt.Sprintf("/repos/%s/%s/releases/%d", owner, repo, rel.ID), nil)
	if err != nil {
		return err
	}
	resp, err = c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete release %d: %s", rel.ID, resp.Status)
	}
	return nil
}

// Create publishes a new release for tag with the given title and notes.
func (c *Client) Create(ctx context.Context, owner, repo, tag, title, notes string) error {
	payload, err := json.Marshal(map[string]string{
		"tag_name": tag,
		"name":     title,
		"body":     notes,
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/releases", owner, repo), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("create release for tag %s: %s: %s", tag, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

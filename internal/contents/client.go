// Package contents talks to a git-backed REST contents API: it reads the
// current blob hash of a file and writes a new version of it.
package contents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultBaseURL = "https://api.github.com"
	acceptHeader   = "application/vnd.github+json"
	maxErrorBody   = 64 << 10
)

// Config holds the settings for a Client. Only Token is required.
type Config struct {
	// BaseURL is the API root. Defaults to https://api.github.com.
	BaseURL string

	// Token is sent as "Authorization: token <Token>".
	Token string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client issues authenticated contents API requests. A Client holds no
// per-document state and is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

type fileResponse struct {
	SHA string `json:"sha"`
}

type putRequest struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// CurrentSHA returns the blob hash of target on its branch. Any failure,
// including a missing file, reports false: the caller then creates the file.
func (c *Client) CurrentSHA(ctx context.Context, target Target) (string, bool) {
	endpoint := c.baseURL + target.contentsPath() + "?ref=" + url.QueryEscape(target.Branch)
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Debug("contents sha lookup failed", "target", target.String(), "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("contents sha absent", "target", target.String(), "status", resp.StatusCode)
		return "", false
	}

	var file fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil || file.SHA == "" {
		c.logger.Debug("contents sha unreadable", "target", target.String(), "error", err)
		return "", false
	}
	return file.SHA, true
}

// Put writes base64 payload to target, updating the existing file when one is
// found. It returns the HTTP status of the write; only transport failures
// are reported as errors. No retry is attempted.
func (c *Client) Put(ctx context.Context, target Target, payload, message string) (int, error) {
	sha, _ := c.CurrentSHA(ctx, target)

	body, err := json.Marshal(putRequest{
		Path:    target.Path,
		Message: message,
		Content: payload,
		Branch:  target.Branch,
		SHA:     sha,
	})
	if err != nil {
		return 0, fmt.Errorf("encode put request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, c.baseURL+target.contentsPath(), body)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", target, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	c.logger.Debug("contents put", "target", target.String(), "status", resp.StatusCode, "update", sha != "")
	return resp.StatusCode, nil
}

// Verify checks that the token can read the repository on branch. A rejected
// token or missing repository is returned as an *APIError.
func (c *Client) Verify(ctx context.Context, owner, repo, branch string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	if branch != "" {
		endpoint += "?ref=" + url.QueryEscape(branch)
	}
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("verify %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	return parseAPIError(resp)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

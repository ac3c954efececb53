// Package githubstore reads and writes repository files through the GitHub
// Contents API.
package githubstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"literature-manager/internal/config"
	"literature-manager/internal/metrics"
)

const userAgent = "literature-manager"

// Config holds everything a Client needs; there is no package-level state.
type Config struct {
	APIBase        string
	RawBase        string
	Owner          string
	Repo           string
	Branch         string
	Token          string
	MaxRetries     int
	BaseDelay      time.Duration
	DeleteInterval time.Duration
	HTTPTimeout    time.Duration
}

func ConfigFrom(c config.GitHubConfig) Config {
	return Config{
		APIBase:        c.APIBase,
		RawBase:        c.RawBase,
		Owner:          c.Owner,
		Repo:           c.Repo,
		Branch:         c.Branch,
		Token:          c.Token,
		MaxRetries:     c.MaxRetries,
		BaseDelay:      time.Duration(c.RetryBaseDelayMS) * time.Millisecond,
		DeleteInterval: time.Duration(c.DeleteIntervalMS) * time.Millisecond,
		HTTPTimeout:    time.Duration(c.HTTPTimeoutSeconds) * time.Second,
	}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the wait used between conflict retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

type Client struct {
	cfg     Config
	http    *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
	limiter *rate.Limiter
}

// Blob is one file of the repository.
type Blob struct {
	Path    string
	SHA     string
	Size    int64
	Content []byte
}

type PutResult struct {
	Path     string
	SHA      string
	Attempts int
}

// Entry is one item of a directory listing; Type is "file" or "dir".
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type writeResponse struct {
	Content struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.github.com"
	}
	if cfg.RawBase == "" {
		cfg.RawBase = "https://raw.githubusercontent.com"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	cfg.RawBase = strings.TrimRight(cfg.RawBase, "/")

	limit := rate.Inf
	if cfg.DeleteInterval > 0 {
		limit = rate.Every(cfg.DeleteInterval)
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		sleep:   sleepContext,
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) IsConfigured() bool {
	return c.cfg.Owner != "" && c.cfg.Repo != "" && c.cfg.Token != ""
}

func (c *Client) Config() Config {
	return c.cfg
}

// RawURL is the public download location of path on the configured branch.
func (c *Client) RawURL(path string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", c.cfg.RawBase, c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, escapePath(path))
}

func (c *Client) Get(ctx context.Context, path string) (*Blob, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.contentsURL(path, true), nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) > 0 && raw[0] == '[' {
		return nil, fmt.Errorf("get %s failed: path is a directory", path)
	}

	var resp contentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode content %s failed: %w", path, err)
	}

	blob := &Blob{Path: resp.Path, SHA: resp.SHA, Size: resp.Size}
	switch {
	case resp.Encoding == "base64":
		content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode content %s failed: %w", path, err)
		}
		blob.Content = content
	case resp.Size > 0:
		// Files over 1 MB come back without inline content.
		content, err := c.Raw(ctx, path)
		if err != nil {
			return nil, err
		}
		blob.Content = content
	}
	return blob, nil
}

// SHA returns the current version tag of path, or "" when it does not exist.
func (c *Client) SHA(ctx context.Context, path string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, c.contentsURL(path, true), nil, &raw)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var resp contentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode content %s failed: %w", path, err)
	}
	return resp.SHA, nil
}

// Put creates or replaces path. An empty sha means "look it up first". When the
// stored version moves underneath the write, Put fetches the new sha and tries
// again, up to MaxRetries times with exponential backoff.
func (c *Client) Put(ctx context.Context, path string, content []byte, message, sha string) (*PutResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var err error
	if sha == "" {
		if sha, err = c.SHA(ctx, path); err != nil {
			return nil, err
		}
	}

	maxAttempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.BaseDelay << (attempt - 2)
			metrics.GitHubConflictRetries.Inc()
			log.Warn().Str("path", path).Int("attempt", attempt).Dur("delay", delay).Msg("github version conflict, retrying")

			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			if sha, err = c.SHA(ctx, path); err != nil {
				return nil, err
			}
		}

		newSHA, err := c.putOnce(ctx, path, content, message, sha)
		if err == nil {
			return &PutResult{Path: path, SHA: newSHA, Attempts: attempt}, nil
		}
		if !isConflict(err, sha != "") {
			return nil, err
		}
		lastErr = err
	}
	return nil, &ConflictError{Path: path, Attempts: maxAttempts, Err: lastErr}
}

// Update is a read-modify-write of path. fn receives the current content, or
// nil when path does not exist yet, and returns the content to write. On a
// version conflict the blob is read again and fn re-applied, so a concurrent
// writer's change is kept instead of overwritten. Errors from fn are returned
// unchanged.
func (c *Client) Update(ctx context.Context, path, message string, fn func(current []byte) ([]byte, error)) (*PutResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	maxAttempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.BaseDelay << (attempt - 2)
			metrics.GitHubConflictRetries.Inc()
			log.Warn().Str("path", path).Int("attempt", attempt).Dur("delay", delay).Msg("github version conflict, re-reading")

			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		var current []byte
		sha := ""
		blob, err := c.Get(ctx, path)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		default:
			current, sha = blob.Content, blob.SHA
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		newSHA, err := c.putOnce(ctx, path, next, message, sha)
		if err == nil {
			return &PutResult{Path: path, SHA: newSHA, Attempts: attempt}, nil
		}
		if !isConflict(err, sha != "") {
			return nil, err
		}
		lastErr = err
	}
	return nil, &ConflictError{Path: path, Attempts: maxAttempts, Err: lastErr}
}

func (c *Client) putOnce(ctx context.Context, path string, content []byte, message, sha string) (string, error) {
	body := writeRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.cfg.Branch,
		SHA:     sha,
	}
	var resp writeResponse
	if err := c.do(ctx, http.MethodPut, c.contentsURL(path, false), body, &resp); err != nil {
		return "", err
	}
	return resp.Content.SHA, nil
}

// Delete removes path. An empty sha is looked up first.
func (c *Client) Delete(ctx context.Context, path, message, sha string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if sha == "" {
		var err error
		if sha, err = c.SHA(ctx, path); err != nil {
			return err
		}
		if sha == "" {
			return fmt.Errorf("delete %s failed: %w", path, ErrNotFound)
		}
	}
	if message == "" {
		message = "Delete " + path
	}

	body := writeRequest{Message: message, Branch: c.cfg.Branch, SHA: sha}
	return c.do(ctx, http.MethodDelete, c.contentsURL(path, false), body, nil)
}

// List returns the entries of the directory at path ("" for the root).
func (c *Client) List(ctx context.Context, path string) ([]Entry, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.contentsURL(path, true), nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) > 0 && raw[0] != '[' {
		return nil, fmt.Errorf("list %s failed: path is a file", path)
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode listing %s failed: %w", path, err)
	}
	return entries, nil
}

// DeleteDir removes every file below path, depth first. Each delete waits on
// the client's limiter. Failures on single files do not stop the walk; they
// are joined into the returned error.
func (c *Client) DeleteDir(ctx context.Context, path string) (int, error) {
	entries, err := c.List(ctx, path)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var errs []error
	for _, e := range entries {
		switch e.Type {
		case "file":
			if err := c.limiter.Wait(ctx); err != nil {
				return deleted, err
			}
			if err := c.Delete(ctx, e.Path, "Delete "+e.Path, e.SHA); err != nil {
				log.Warn().Err(err).Str("path", e.Path).Msg("delete file failed")
				errs = append(errs, err)
				continue
			}
			deleted++
		case "dir":
			n, err := c.DeleteDir(ctx, e.Path)
			deleted += n
			if err != nil {
				if ctx.Err() != nil {
					return deleted, err
				}
				errs = append(errs, err)
			}
		}
	}
	return deleted, errors.Join(errs...)
}

// Raw downloads path from the raw content host, bypassing the API.
func (c *Client) Raw(ctx context.Context, path string) ([]byte, error) {
	if c.cfg.Owner == "" || c.cfg.Repo == "" {
		return nil, ErrNotConfigured
	}
	return c.send(ctx, http.MethodGet, c.RawURL(path), nil)
}

// User returns the login the token belongs to.
func (c *Client) User(ctx context.Context) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := c.do(ctx, http.MethodGet, c.cfg.APIBase+"/user", nil, &user); err != nil {
		return "", err
	}
	return user.Login, nil
}

func (c *Client) contentsURL(path string, withRef bool) string {
	u := fmt.Sprintf("%s/repos/%s/%s/contents", c.cfg.APIBase, url.PathEscape(c.cfg.Owner), url.PathEscape(c.cfg.Repo))
	if p := strings.Trim(path, "/"); p != "" {
		u += "/" + escapePath(p)
	}
	if withRef && c.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(c.cfg.Branch)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	data, err := c.send(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode github response failed: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode github request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build github request failed: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.GitHubRequests.WithLabelValues(method, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.GitHubRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRemoteUnavailable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, statusError(method, req.URL.Path, resp, data)
}

func statusError(method, path string, resp *http.Response, body []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		return fmt.Errorf("%w: %s %s", ErrRateLimited, method, path)
	}
	return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: payload.Message}
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

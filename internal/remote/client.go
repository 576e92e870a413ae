// Package remote provides the HTTP client for the cloud-hosted
// authoritative store.
//
// This is the only package in stitchsync that performs network I/O.
// The client exposes exactly three operations: a connectivity probe,
// an idempotent upsert by record id, and a query-by-recency per entity
// kind. It performs no retries; retry policy lives in the sync engine,
// which treats every error here as a per-record (or per-pass) failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

var (
	// ErrNotConfigured means no base URL or credential is available.
	// The caller should treat the system as permanently offline, not
	// crash.
	ErrNotConfigured = errors.New("remote store not configured")

	// ErrUnauthorized means the backend rejected our credential.
	ErrUnauthorized = errors.New("remote store rejected credentials")
)

// StatusError is returned for any other non-2xx backend response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote store returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote store returned %d", e.Code)
}

// Client talks to the remote record store over HTTP with a bearer
// token. Credentials can be swapped at runtime (SetAuth) so a config
// reload takes effect without restarting the process.
type Client struct {
	httpClient *http.Client

	mu      sync.RWMutex
	baseURL string
	token   string
}

// NewClient creates a remote store client. A nil httpClient uses
// http.DefaultClient. Empty baseURL or token leaves the client
// unconfigured; every call then returns ErrNotConfigured.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

// Configured reports whether both a base URL and a credential are set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL != "" && c.token != ""
}

// SetAuth replaces the endpoint and credential.
func (c *Client) SetAuth(baseURL, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	c.token = strings.TrimSpace(token)
}

// Probe performs a minimal connectivity check against the backend.
func (c *Client) Probe(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// Upsert inserts or replaces one record by id. Retrying the same
// upsert is safe: the backend keys on the record id.
func (c *Client) Upsert(ctx context.Context, env model.Envelope) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	path := fmt.Sprintf("/v1/records/%s/%s", env.Kind, url.PathEscape(env.ID))
	return c.do(ctx, http.MethodPut, path, env, nil)
}

// listResponse is the wire shape of a query-by-recency result.
type listResponse struct {
	Records []model.Envelope `json:"records"`
}

// ListUpdatedSince returns remote records of one kind ordered newest
// updated_at first. A nil cursor returns the full remote set.
func (c *Client) ListUpdatedSince(ctx context.Context, kind model.Kind, since *time.Time) ([]model.Envelope, error) {
	path := fmt.Sprintf("/v1/records/%s", kind)
	if since != nil {
		path += "?updated_since=" + url.QueryEscape(since.Format(time.RFC3339Nano))
	}
	var out listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// errorBody is the backend's JSON error shape.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	c.mu.RLock()
	baseURL, token := c.baseURL, c.token
	c.mu.RUnlock()

	if baseURL == "" || token == "" {
		return ErrNotConfigured
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(eb.Error)}
	}
}

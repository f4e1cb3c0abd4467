// Package client provides a thin HTTP client for driving the roommate API
// during load tests. Every call returns the HTTP status so callers can
// record it; only transport failures are returned as errors.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client issues API requests against a single base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        1024,
				MaxIdleConnsPerHost: 1024,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Score requests the compatibility between a and b.
func (c *Client) Score(ctx context.Context, a, b string) (int, error) {
	return c.do(ctx, http.MethodGet, "/api/compatibility/"+url.PathEscape(a)+"/"+url.PathEscape(b))
}

// Feed requests id's feed.
func (c *Client) Feed(ctx context.Context, id string, limit int) (int, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%s/feed?limit=%d", url.PathEscape(id), limit))
}

// Groups requests the groups owner can invite.
func (c *Client) Groups(ctx context.Context, owner string) (int, error) {
	return c.do(ctx, http.MethodGet, "/api/owners/"+url.PathEscape(owner)+"/groups")
}

// Interest records that from liked to.
func (c *Client) Interest(ctx context.Context, from, to string) (int, error) {
	return c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(from)+"/interest/"+url.PathEscape(to))
}

func (c *Client) do(ctx context.Context, method, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection is reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

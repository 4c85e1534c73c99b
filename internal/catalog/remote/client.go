// Package remote is a minimal client for the CKAN action API exposed by
// data.go.th.
//
// Every action is a GET to {base}/api/3/action/{name} returning an envelope
//
//	{"success": true, "result": ...}
//
// A response with success != true, a non-2xx status, a transport error or an
// expired deadline is reported as catalog.ErrRemote.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opendatath/catalog/internal/catalog"
)

// Defaults for the public data.go.th catalog.
const (
	DefaultBaseURL = "https://data.go.th"
	DefaultTimeout = 10 * time.Second
	APIVersion     = "3"
)

// maxBody bounds how much of a response is read.
const maxBody = 32 << 20

// Client calls CKAN actions with a bearer token.
type Client struct {
	baseURL   string
	token     string
	timeout   time.Duration
	http      *http.Client
	userAgent string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL (DefaultBaseURL when empty).
// An empty token yields catalog.ErrUnavailable.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, catalog.ErrUnavailable
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base url %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		timeout:   DefaultTimeout,
		http:      &http.Client{},
		userAgent: "odcat/1",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the catalog root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// notFoundType is the CKAN error __type for a missing object.
const notFoundType = "Not Found Error"

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"__type"`
	} `json:"error"`
}

// Call invokes a CKAN action and decodes its result into out (which may be
// nil).
func (c *Client) Call(ctx context.Context, action string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/api/%s/action/%s", c.baseURL, APIVersion, action)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to build %s request: %w", catalog.ErrRemote, action, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %v", catalog.ErrTimeout, action, c.timeout)
		}
		return fmt.Errorf("%w: %s request failed: %w", catalog.ErrRemote, action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %v", catalog.ErrTimeout, action, c.timeout)
		}
		return fmt.Errorf("%w: failed to read %s response: %w", catalog.ErrRemote, action, err)
	}

	// CKAN reports errors in the envelope on 4xx responses too, so decode
	// before looking at the status code.
	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	msg := ""
	if decodeErr == nil && env.Error != nil {
		msg = env.Error.Message
	}
	if resp.StatusCode == http.StatusNotFound || (decodeErr == nil && env.Error != nil && env.Error.Type == notFoundType) {
		if msg == "" {
			msg = "not found"
		}
		return fmt.Errorf("%w: %s: %s", catalog.ErrNotFound, action, msg)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg != "" {
			return fmt.Errorf("%w: %s returned HTTP %d: %s", catalog.ErrRemote, action, resp.StatusCode, msg)
		}
		return fmt.Errorf("%w: %s returned HTTP %d", catalog.ErrRemote, action, resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: failed to decode %s response: %w", catalog.ErrRemote, action, decodeErr)
	}
	if !env.Success {
		if msg == "" {
			msg = "success=false"
		}
		return fmt.Errorf("%w: %s: %s", catalog.ErrRemote, action, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s result: %w", catalog.ErrRemote, action, err)
	}
	return nil
}

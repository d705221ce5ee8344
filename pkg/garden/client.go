// Package garden is the Rise Gardens REST client.
//
// Client.Do issues one authenticated call and retries it at most once after
// a 401, renewing the token in between. The typed operations in api.go are
// thin wrappers over Do.
package garden

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/auth"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
)

const (
	// DefaultBaseURL is the production API root
	DefaultBaseURL = "https://prod-api.risegds.com/v2"
	// RequestTimeout bounds every API call
	RequestTimeout = 30 * time.Second

	// maxAttempts bounds Do to the first call plus one retry after a 401
	maxAttempts = 2
	maxBodySize = 4 << 20
)

// Headers sent by the Android app, replayed on every request
var deviceHeaders = map[string]string{
	"accept":       "application/json",
	"Content-Type": "application/json",
	"User-Agent":   "okhttp/3.14.9",
	"platform":     "android",
	"version":      "3.3.16",
}

var (
	// ErrTransport is returned when the request could not be completed
	ErrTransport = errors.New("transport error")
	// ErrUnauthorized is returned when the API still rejects the token after renewal
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnexpectedStatus is returned for any non-200 reply
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrUpstreamData is returned when a 200 body cannot be decoded
	ErrUpstreamData = errors.New("unexpected response data")
	// ErrInvalidLevel is returned for a light level outside 0-100
	ErrInvalidLevel = errors.New("light level must be between 0 and 100")
)

// TokenSource is the part of auth.TokenManager the client needs
type TokenSource interface {
	EnsureValid(ctx context.Context)
	RefreshAccessToken(ctx context.Context) bool
	Session() auth.Session
}

// Request describes one API call
type Request struct {
	Method string
	// Path is relative to the base URL, e.g. "/gardens/list_v2"
	Path  string
	Query url.Values
	// Body is JSON encoded when non-nil
	Body interface{}
}

// Response is a fully read API reply
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client issues authenticated requests against the garden API
type Client struct {
	tokens     TokenSource
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a Client that authenticates through tokens
func NewClient(tokens TokenSource, opts Options) *Client {
	c := &Client{
		tokens:     tokens,
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		log:        logger.OrDiscard(opts.Logger),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: RequestTimeout}
	}
	return c
}

// Do executes r. A 401 on the first attempt renews the token and resends
// once; a failed renewal or a second 401 yields ErrUnauthorized. Transport
// failures yield ErrTransport. Any other status is returned as a Response
// for the caller to judge.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	var payload []byte
	if r.Body != nil {
		var err error
		if payload, err = json.Marshal(r.Body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	c.tokens.EnsureValid(ctx)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.send(ctx, r, payload)
		if err != nil {
			c.log.Error("Rise Gardens request failed", "method", r.Method, "path", r.Path, "error", err.Error())
			return nil, fmt.Errorf("%s %s: %w: %v", r.Method, r.Path, ErrTransport, err)
		}

		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}

		if attempt == maxAttempts {
			break
		}

		c.log.Info("Received 401, renewing token and retrying", "method", r.Method, "path", r.Path)
		if !c.tokens.RefreshAccessToken(ctx) {
			c.log.Error("Token renewal failed after 401", "method", r.Method, "path", r.Path)
			return nil, fmt.Errorf("%s %s: %w: token renewal failed", r.Method, r.Path, ErrUnauthorized)
		}
	}

	c.log.Error("Request still unauthorized after token renewal", "method", r.Method, "path", r.Path)
	return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, ErrUnauthorized)
}

func (c *Client) send(ctx context.Context, r Request, payload []byte) (*Response, error) {
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range deviceHeaders {
		req.Header.Set(k, v)
	}
	// The session is read per attempt so a retry carries the renewed token.
	c.tokens.Session().SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

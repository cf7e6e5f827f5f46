// Package client is the uniform HTTP client for the remote API and the
// dispatcher that adds retries, idempotency and rate limiting on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/common"
)

// maxResponseSize caps the response body to prevent OOM from unexpectedly large responses.
const maxResponseSize = 50 << 20 // 50MB

// APIResponse is a successful remote response.
type APIResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON returns the body as raw JSON, substituting null for an empty body.
func (r *APIResponse) JSON() json.RawMessage {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return json.RawMessage("null")
	}
	if !json.Valid(r.Body) {
		quoted, _ := json.Marshal(string(r.Body))
		return quoted
	}
	return json.RawMessage(r.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Headers    map[string]string
	UserAgent  string
	HTTPClient *http.Client
}

// Client performs single-attempt requests against the remote API. Every
// request carries the same authentication and content negotiation headers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	headers    http.Header
}

// New creates a client targeting opts.BaseURL.
func New(opts Options, logger *common.Logger) *Client {
	headers := make(http.Header)
	headers.Set("Accept", "application/json")
	headers.Set("Content-Type", "application/json")
	if opts.APIKey != "" {
		headers.Set("Authorization", "Bearer "+opts.APIKey)
	}
	if opts.UserAgent != "" {
		headers.Set("User-Agent", opts.UserAgent)
	}
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		headers:    headers,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Headers returns a copy of the static headers sent with every request.
func (c *Client) Headers() http.Header {
	return c.headers.Clone()
}

// Do performs one request. Non-2xx responses are returned as *apierr.Error;
// transport failures are transient.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, headers http.Header) (*APIResponse, error) {
	c.logger.Debug().Str("method", method).Str("path", path).Msg("api request")

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindInvalidArgument, err, "failed to marshal request body")
		}
		bodyReader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInvalidArgument, err, "invalid request %s %s", method, path)
	}
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn().Str("method", method).Str("path", path).Int64("duration_ms", duration.Milliseconds()).Str("error", err.Error()).Msg("api request failed")
		return nil, apierr.Wrap(apierr.KindTransient, err, "request to %s failed", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, err, "failed to read response")
	}

	c.logger.Debug().Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("api response")

	if resp.StatusCode >= 400 {
		return nil, apierr.FromResponse(resp.StatusCode, resp.Header, respBody)
	}
	return &APIResponse{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

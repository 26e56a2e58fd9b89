package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/hashicorp/go-retryablehttp"
)

// SendFunc performs one raw HTTP round trip.
type SendFunc func(req *http.Request) (*http.Response, error)

// Throttler gates raw round trips, e.g. against a rate-limit budget. It may
// call send more than once for the same request.
type Throttler interface {
	Do(ctx context.Context, req *http.Request, send SendFunc) (*http.Response, error)
}

// Client is the HTTP transport shared by the dispatch core and the token
// endpoint. It holds no credential state.
type Client struct {
	baseURL     string
	retryClient *retryablehttp.Client
	throttler   Throttler
	logger      helix.Logger
	debug       bool
	userAgent   string
	headers     map[string]string
}

// Request represents an HTTP request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Form    url.Values
	Headers map[string]string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger helix.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.retryClient.Logger = newLeveledLogger(logger, c.debug)
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
		if c.logger != nil {
			c.retryClient.Logger = newLeveledLogger(c.logger, debug)
		}
	}
}

// WithRetryConfig enables transport-level retries of connection errors and
// 5xx responses. 429 is never retried here; the throttler owns it.
func WithRetryConfig(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.retryClient.RetryMax = maxRetries
		c.retryClient.RetryWaitMin = waitMin
		c.retryClient.RetryWaitMax = waitMax
		c.retryClient.CheckRetry = serverErrorPolicy
	}
}

// WithTimeout bounds every round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.retryClient.HTTPClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.retryClient.HTTPClient = httpClient
	}
}

// WithThrottler routes every round trip through throttler.
func WithThrottler(throttler Throttler) Option {
	return func(c *Client) {
		c.throttler = throttler
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// NewClient creates a new HTTP client. An empty baseURL means request paths
// are absolute URLs.
func NewClient(baseURL string, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.CheckRetry = noRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}

	client := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		retryClient: retryClient,
		userAgent:   constants.DefaultUserAgent,
		headers:     make(map[string]string),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StandardClient returns an *http.Client sharing this client's transport and
// retry policy, for libraries that take a plain client.
func (c *Client) StandardClient() *http.Client {
	return c.retryClient.StandardClient()
}

// Do performs an HTTP request. Non-2xx responses are returned together with a
// *helix.HTTPStatusError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": httpReq.Method,
			"url":    httpReq.URL.String(),
		})
	}

	var httpResp *http.Response
	if c.throttler != nil {
		httpResp, err = c.throttler.Do(ctx, httpReq, c.send)
	} else {
		httpResp, err = c.send(httpReq)
	}

	if err != nil {
		return nil, err
	}

	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":   httpResp.StatusCode,
			"duration": time.Since(start).String(),
			"size":     len(body),
		})
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return resp, helix.NewHTTPStatusError(httpResp.StatusCode, httpReq.Method, redactedURL(httpReq.URL), body)
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
}

// PostForm performs a form-encoded POST request.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Form:   form,
	})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPut,
		Path:   path,
		Body:   body,
	})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   path,
		Body:   body,
	})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Path:   path,
	})
}

func (c *Client) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target, err := c.resolve(req.Path)
	if err != nil {
		return nil, err
	}

	if len(req.Query) > 0 {
		query := target.Query()
		for key, values := range req.Query {
			for _, value := range values {
				query.Add(key, value)
			}
		}

		target.RawQuery = query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)

	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}

		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

func (c *Client) resolve(path string) (*url.URL, error) {
	raw := path
	if c.baseURL != "" && !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = c.baseURL + "/" + strings.TrimPrefix(path, "/")
	}

	target, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing URL %q: %w", raw, err)
	}

	if !target.IsAbs() {
		return nil, fmt.Errorf("%w: %s", ErrRelativeURL, raw)
	}

	return target, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	return c.retryClient.Do(retryReq)
}

// redactedURL drops the query, which may carry tokens or user identifiers.
func redactedURL(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""

	return clean.String()
}

func noRetryPolicy(context.Context, *http.Response, error) (bool, error) {
	return false, nil
}

func serverErrorPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, ctx.Err()
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

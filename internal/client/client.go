// Package client implements the dispatch core behind helix.Client.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	iauth "github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/internal/constants"
	helixhttp "github.com/fivetwenty-io/helix/internal/http"
	"github.com/fivetwenty-io/helix/internal/ratelimit"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/google/uuid"
)

// Static errors for err113 compliance.
var (
	ErrUnknownCallType = errors.New("unknown call type")
)

var _ helix.Client = (*Client)(nil)

// Client implements the helix.Client interface.
type Client struct {
	apiHTTP    *helixhttp.Client
	authHTTP   *helixhttp.Client
	customHTTP *helixhttp.Client
	limiter    *ratelimit.Limiter
	provider   helix.AuthProvider
	endpoint   *iauth.Endpoint
	cache      *helix.CacheManager
	policy     *helix.CachingPolicy
	logger     helix.Logger
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *helix.Config) []helixhttp.Option {
	httpOpts := []helixhttp.Option{
		helixhttp.WithTimeout(config.HTTPTimeout),
	}

	if config.Logger != nil {
		httpOpts = append(httpOpts, helixhttp.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, helixhttp.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, helixhttp.WithUserAgent(config.UserAgent))
	}

	return httpOpts
}

// createLimiter builds the rate limiter shared by every API call of the client.
func createLimiter(config *helix.Config) *ratelimit.Limiter {
	limiterOpts := []ratelimit.Option{
		ratelimit.WithLogger(config.Logger),
	}

	if config.ProactiveRate > 0 {
		limiterOpts = append(limiterOpts, ratelimit.WithProactiveRate(config.ProactiveRate, 1))
	}

	return ratelimit.NewLimiter(limiterOpts...)
}

// New creates the dispatch core for config.
func New(config *helix.Config) (*Client, error) {
	if config == nil {
		return nil, helix.ErrConfigRequired
	}

	if config.AuthProvider == nil {
		return nil, helix.ErrNoAuthProvider
	}

	if config.AuthProvider.ClientID() == "" {
		return nil, helix.ErrClientIDRequired
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = constants.DefaultAPIBaseURL
	}

	authBaseURL := config.AuthBaseURL
	if authBaseURL == "" {
		authBaseURL = constants.DefaultAuthBaseURL
	}

	limiter := createLimiter(config)
	httpOpts := createHTTPClientOptions(config)

	apiHTTP := helixhttp.NewClient(baseURL, slices.Concat(httpOpts, []helixhttp.Option{
		helixhttp.WithThrottler(limiter),
		helixhttp.WithHeader(constants.HeaderClientID, config.AuthProvider.ClientID()),
	})...)

	authHTTP := helixhttp.NewClient(authBaseURL, slices.Concat(httpOpts, []helixhttp.Option{
		helixhttp.WithRetryConfig(constants.TokenRetryMax, constants.DefaultRetryWaitMin, constants.DefaultRetryWaitMax),
	})...)

	customHTTP := helixhttp.NewClient("", httpOpts...)

	client := &Client{
		apiHTTP:    apiHTTP,
		authHTTP:   authHTTP,
		customHTTP: customHTTP,
		limiter:    limiter,
		provider:   config.AuthProvider,
		endpoint: iauth.NewEndpoint(authBaseURL, config.AuthProvider.ClientID(), "",
			iauth.WithHTTPClient(authHTTP),
			iauth.WithLogger(config.Logger),
		),
		policy: helix.DefaultCachingPolicy(),
		logger: config.Logger,
	}

	if config.Cache != nil {
		client.cache = helix.NewCacheManager(config.Cache, config.Logger)
	}

	return client, nil
}

// AuthProvider implements helix.Client.AuthProvider.
func (c *Client) AuthProvider() helix.AuthProvider {
	return c.provider
}

// RateLimit implements helix.Client.RateLimit.
func (c *Client) RateLimit() helix.RateLimitBudget {
	return c.limiter.Budget()
}

// CacheStats returns the response cache counters, or zero values without a cache.
func (c *Client) CacheStats() helix.CacheStats {
	if c.cache == nil {
		return helix.CacheStats{}
	}

	return c.cache.GetStats()
}

// TokenInfo implements helix.Client.TokenInfo.
func (c *Client) TokenInfo(ctx context.Context) (*helix.TokenInfo, error) {
	token, err := c.provider.GetAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return c.endpoint.Validate(ctx, token.AccessToken)
}

// CallAPI implements helix.APICaller. Successful responses return the raw
// body, or nil for 204 No Content.
func (c *Client) CallAPI(ctx context.Context, descriptor *helix.CallDescriptor) (json.RawMessage, error) {
	if descriptor == nil {
		return nil, helix.ErrDescriptorRequired
	}

	method := descriptor.Method
	if method == "" {
		method = http.MethodGet
	}

	requestID := uuid.NewString()

	if c.logger != nil {
		c.logger.Debug("dispatching call", map[string]interface{}{
			"request_id": requestID,
			"method":     method,
			"url":        descriptor.URL,
			"scope":      descriptor.Scope,
		})
	}

	var token *helix.AccessToken
	if descriptor.Type == helix.CallTypeHelix {
		var err error

		token, err = c.provider.GetAccessToken(ctx, descriptor.Scopes()...)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
	}

	cacheKey := ""
	if c.cacheable(method, descriptor) {
		principal := ""
		if token != nil {
			principal = helix.CachePrincipal(c.provider.ClientID(), token)
		}

		cacheKey = c.cache.GetCacheKey(principal, method, descriptor.URL, descriptor.Query)

		data, err := c.cache.Get(ctx, cacheKey)
		if err == nil {
			if c.logger != nil {
				c.logger.Debug("served from cache", map[string]interface{}{
					"request_id": requestID,
					"url":        descriptor.URL,
				})
			}

			return data, nil
		}
	}

	resp, err := c.dispatch(ctx, method, descriptor, token, requestID)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, nil
	}

	if cacheKey != "" && c.policy.ShouldCache(method, descriptor.URL, resp.StatusCode) {
		// Failures are logged by the cache manager.
		_ = c.cache.Set(ctx, cacheKey, resp.Body, descriptor.CacheTTL)
	}

	return json.RawMessage(resp.Body), nil
}

func (c *Client) cacheable(method string, descriptor *helix.CallDescriptor) bool {
	return c.cache != nil && descriptor.CacheTTL > 0 && method == http.MethodGet
}

func (c *Client) dispatch(ctx context.Context, method string, descriptor *helix.CallDescriptor, token *helix.AccessToken, requestID string) (*helixhttp.Response, error) {
	req := &helixhttp.Request{
		Method:  method,
		Path:    descriptor.URL,
		Query:   descriptor.Query,
		Body:    descriptor.JSONBody,
		Headers: map[string]string{constants.HeaderRequestID: requestID},
	}

	switch descriptor.Type {
	case helix.CallTypeAuth:
		return c.authHTTP.Do(ctx, req)
	case helix.CallTypeCustom:
		return c.customHTTP.Do(ctx, req)
	case helix.CallTypeHelix:
		return c.dispatchAuthenticated(ctx, req, descriptor, token, requestID)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCallType, descriptor.Type)
	}
}

// dispatchAuthenticated sends req with token. A 401 is answered by one
// refresh and one retry when the provider can refresh.
func (c *Client) dispatchAuthenticated(ctx context.Context, req *helixhttp.Request, descriptor *helix.CallDescriptor, token *helix.AccessToken, requestID string) (*helixhttp.Response, error) {
	req.Headers["Authorization"] = "Bearer " + token.AccessToken

	resp, err := c.apiHTTP.Do(ctx, req)
	if err == nil || !helix.IsUnauthorized(err) {
		return resp, err
	}

	refresh := c.rejectionRefresh()
	if refresh == nil {
		return resp, err
	}

	if c.logger != nil {
		c.logger.Warn("token rejected, refreshing and retrying once", map[string]interface{}{
			"request_id": requestID,
			"url":        descriptor.URL,
		})
	}

	refreshed, refreshErr := refresh(ctx, token)
	if refreshErr != nil {
		return nil, fmt.Errorf("failed to refresh token after 401: %w", refreshErr)
	}

	req.Headers["Authorization"] = "Bearer " + refreshed.AccessToken

	return c.apiHTTP.Do(ctx, req)
}

// rejectionRefresh returns the provider's way to replace a rejected token,
// or nil when it cannot refresh. Plain Refreshers ignore which token failed.
func (c *Client) rejectionRefresh() func(context.Context, *helix.AccessToken) (*helix.AccessToken, error) {
	switch provider := c.provider.(type) {
	case helix.RejectionRefresher:
		return provider.RefreshRejected
	case helix.Refresher:
		return func(ctx context.Context, _ *helix.AccessToken) (*helix.AccessToken, error) {
			return provider.Refresh(ctx)
		}
	default:
		return nil
	}
}

// Package auth provides the AuthProvider implementations: a static token, an
// application token from the client-credentials grant, and a refreshing user
// token wrapper. Helpers cover the remaining token endpoint operations.
package auth

import (
	"context"
	"net/http"
	"time"

	iauth "github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/internal/constants"
	helixhttp "github.com/fivetwenty-io/helix/internal/http"
	"github.com/fivetwenty-io/helix/pkg/helix"
)

// RefreshCallback receives every token a provider obtains through a refresh.
// A returned error is logged and does not fail the refresh.
type RefreshCallback func(ctx context.Context, token *helix.AccessToken) error

// Option configures a provider or helper.
type Option func(*options)

type options struct {
	authBaseURL    string
	httpClient     *http.Client
	logger         helix.Logger
	now            func() time.Time
	scopes         []string
	validate       bool
	tokenType      helix.TokenType
	overrideExpiry time.Time
	onRefresh      RefreshCallback
}

// WithAuthBaseURL overrides the token endpoint root.
func WithAuthBaseURL(baseURL string) Option {
	return func(o *options) {
		o.authBaseURL = baseURL
	}
}

// WithHTTPClient replaces the *http.Client used against the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger helix.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithScopes declares the scopes a static token carries.
func WithScopes(scopes ...string) Option {
	return func(o *options) {
		o.scopes = iauth.NormalizeScopes(scopes)
	}
}

// WithValidation lets a static provider whose scopes are unknown learn them
// from the validation endpoint on the first scoped request.
func WithValidation() Option {
	return func(o *options) {
		o.validate = true
	}
}

// WithTokenType marks a static token as an app or user token (default user).
func WithTokenType(tokenType helix.TokenType) Option {
	return func(o *options) {
		o.tokenType = tokenType
	}
}

// WithOverrideExpiry treats the token as valid until expiresAt, whatever its
// own lifetime says. After expiresAt the token's own expiry applies again.
func WithOverrideExpiry(expiresAt time.Time) Option {
	return func(o *options) {
		o.overrideExpiry = expiresAt
	}
}

// WithOnRefresh registers a callback for refreshed tokens, e.g. to persist them.
func WithOnRefresh(callback RefreshCallback) Option {
	return func(o *options) {
		o.onRefresh = callback
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		now:       time.Now,
		tokenType: helix.TokenTypeUser,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *options) endpoint(clientID, clientSecret string) *iauth.Endpoint {
	endpointOpts := []iauth.EndpointOption{
		iauth.WithLogger(o.logger),
		iauth.WithClock(o.now),
	}

	if o.httpClient != nil {
		baseURL := o.authBaseURL
		if baseURL == "" {
			baseURL = constants.DefaultAuthBaseURL
		}

		endpointOpts = append(endpointOpts, iauth.WithHTTPClient(helixhttp.NewClient(baseURL,
			helixhttp.WithHTTPClient(o.httpClient),
			helixhttp.WithLogger(o.logger),
		)))
	}

	return iauth.NewEndpoint(o.authBaseURL, clientID, clientSecret, endpointOpts...)
}

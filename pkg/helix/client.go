package helix

import (
	"context"
	"encoding/json"
	"time"
)

// AuthProvider supplies credentials to the dispatch core. It is the only
// extension point for custom credential sourcing.
type AuthProvider interface {
	// ClientID is sent as the Client-Id header with every call.
	ClientID() string
	// TokenType reports whether tokens represent the application or a user.
	TokenType() TokenType
	// CurrentScopes lists the scopes the current token is known to carry.
	CurrentScopes() []string
	// GetAccessToken returns a valid token carrying every requested scope,
	// upgrading or refreshing as needed, or fails with a *ScopeError.
	GetAccessToken(ctx context.Context, scopes ...string) (*AccessToken, error)
}

// Refresher is implemented by providers that can replace their token on demand.
type Refresher interface {
	Refresh(ctx context.Context) (*AccessToken, error)
}

// RejectionRefresher is implemented by providers that can replace a token the
// API rejected. A refresh is skipped when the provider already holds a valid
// token other than rejected.
type RejectionRefresher interface {
	RefreshRejected(ctx context.Context, rejected *AccessToken) (*AccessToken, error)
}

// TokenHolder is implemented by providers whose token can be read and replaced.
type TokenHolder interface {
	CurrentToken() *AccessToken
	SetAccessToken(token *AccessToken)
}

// ScopeUpgrader is implemented by providers that can try to obtain a token
// with additional scopes. changed is false when the provider could not
// upgrade and returned its current token as is.
type ScopeUpgrader interface {
	UpgradeScopes(ctx context.Context, scopes []string) (token *AccessToken, changed bool, err error)
}

// APICaller executes one call descriptor and returns the raw JSON body.
type APICaller interface {
	CallAPI(ctx context.Context, descriptor *CallDescriptor) (json.RawMessage, error)
}

// Client is the request pipeline shared by all resource wrappers.
type Client interface {
	APICaller

	// AuthProvider returns the provider the client was built with.
	AuthProvider() AuthProvider
	// RateLimit returns the last budget snapshot learned from the server.
	RateLimit() RateLimitBudget
	// TokenInfo validates the provider's current token against the token endpoint.
	TokenInfo(ctx context.Context) (*TokenInfo, error)
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config represents client configuration for building a helix Client.
//
// # Authentication
//
// AuthProvider is required. Use one of the providers in pkg/auth or a custom
// implementation. Providers implementing RejectionRefresher or Refresher get
// one automatic refresh-and-retry when the API answers 401.
//
// # Rate limiting
//
// The budget is learned from the server's Ratelimit-* response headers; no
// prior configuration is needed. ProactiveRate optionally caps the request
// rate on the client side as well.
//
// # Caching
//
// GET descriptors with a positive CacheTTL are served from Cache when set.
// Keys include the client id and a digest of the access token, so a cache
// shared between clients never serves one credential's response to another.
type Config struct {
	// AuthProvider supplies tokens and the client id.
	AuthProvider AuthProvider

	// BaseURL overrides the API base URL (default "https://api.twitch.tv/helix").
	BaseURL string
	// AuthBaseURL overrides the token endpoint base URL (default "https://id.twitch.tv/oauth2").
	AuthBaseURL string

	// HTTPTimeout bounds each HTTP round trip. Zero leaves calls bounded only by ctx.
	HTTPTimeout time.Duration
	// ProactiveRate caps requests per second on the client side. Zero disables it.
	ProactiveRate float64

	// Debug enables verbose HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger is an optional structured logger used by every layer.
	Logger Logger
	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Cache stores responses of cacheable GET calls.
	Cache Cache
}

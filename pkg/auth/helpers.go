package auth

import (
	"context"

	"github.com/fivetwenty-io/helix/pkg/helix"
)

// ExchangeCode trades an authorization code for a user token.
func ExchangeCode(ctx context.Context, clientID, clientSecret, code, redirectURI string, opts ...Option) (*helix.AccessToken, error) {
	if clientID == "" {
		return nil, helix.ErrClientIDRequired
	}

	return newOptions(opts).endpoint(clientID, clientSecret).ExchangeCode(ctx, code, redirectURI)
}

// ValidateToken returns what the validation endpoint knows about accessToken.
// A rejected token fails with *helix.InvalidTokenError.
func ValidateToken(ctx context.Context, accessToken string, opts ...Option) (*helix.TokenInfo, error) {
	if accessToken == "" {
		return nil, helix.ErrNoAccessToken
	}

	return newOptions(opts).endpoint("", "").Validate(ctx, accessToken)
}

// RevokeToken invalidates accessToken, which must belong to clientID.
func RevokeToken(ctx context.Context, clientID, accessToken string, opts ...Option) error {
	if clientID == "" {
		return helix.ErrClientIDRequired
	}

	if accessToken == "" {
		return helix.ErrNoAccessToken
	}

	return newOptions(opts).endpoint(clientID, "").Revoke(ctx, accessToken)
}

// AuthorizationURL returns the URL a user visits to authorize scopes for clientID.
func AuthorizationURL(clientID, redirectURI, state string, scopes []string, opts ...Option) string {
	return newOptions(opts).endpoint(clientID, "").AuthCodeURL(redirectURI, state, scopes...)
}

package helixclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/helix/internal/client"
	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
)

// New creates a new Helix API client from config.
func New(_ context.Context, config *helix.Config) (helix.Client, error) {
	if config == nil {
		return nil, helix.ErrConfigRequired
	}

	normalized := *config
	normalized.BaseURL = normalizeURL(config.BaseURL)
	normalized.AuthBaseURL = normalizeURL(config.AuthBaseURL)

	c, err := client.New(&normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

// normalizeURL trims a trailing slash and defaults the scheme to https.
func normalizeURL(raw string) string {
	if raw == "" {
		return ""
	}

	raw = strings.TrimSuffix(raw, "/")
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	return raw
}

// NewWithToken creates a client around an access token obtained elsewhere.
// The token's scopes are learned from the validation endpoint when first needed.
func NewWithToken(ctx context.Context, clientID, accessToken string, opts ...auth.Option) (helix.Client, error) {
	provider, err := auth.NewStaticProvider(clientID, &helix.AccessToken{AccessToken: accessToken},
		append([]auth.Option{auth.WithValidation()}, opts...)...)
	if err != nil {
		return nil, err
	}

	return New(ctx, &helix.Config{AuthProvider: provider})
}

// NewWithClientCredentials creates a client using an app token.
func NewWithClientCredentials(ctx context.Context, clientID, clientSecret string, opts ...auth.Option) (helix.Client, error) {
	provider, err := auth.NewClientCredentialsProvider(ctx, clientID, clientSecret, opts...)
	if err != nil {
		return nil, err
	}

	return New(ctx, &helix.Config{AuthProvider: provider})
}

// NewWithUserToken creates a client whose user token is refreshed as needed.
func NewWithUserToken(ctx context.Context, clientID, clientSecret string, token *helix.AccessToken, opts ...auth.Option) (helix.Client, error) {
	provider, err := auth.NewUserProvider(clientID, clientSecret, token, opts...)
	if err != nil {
		return nil, err
	}

	return New(ctx, &helix.Config{AuthProvider: provider})
}

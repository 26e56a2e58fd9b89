package auth

import (
	"context"
	"time"

	iauth "github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"golang.org/x/sync/singleflight"
)

var (
	_ helix.AuthProvider       = (*ClientCredentialsProvider)(nil)
	_ helix.Refresher          = (*ClientCredentialsProvider)(nil)
	_ helix.RejectionRefresher = (*ClientCredentialsProvider)(nil)
	_ helix.TokenHolder        = (*ClientCredentialsProvider)(nil)
)

// ClientCredentialsProvider supplies an app token obtained through the
// client-credentials grant. App tokens carry no user scopes, so any scoped
// request fails with *helix.ScopeError.
type ClientCredentialsProvider struct {
	endpoint *iauth.Endpoint
	store    *iauth.TokenStore
	group    singleflight.Group
	now      func() time.Time
	logger   helix.Logger
	onFetch  RefreshCallback
}

// NewClientCredentialsProvider fetches the first app token right away.
func NewClientCredentialsProvider(ctx context.Context, clientID, clientSecret string, opts ...Option) (*ClientCredentialsProvider, error) {
	if clientID == "" {
		return nil, helix.ErrClientIDRequired
	}

	if clientSecret == "" {
		return nil, helix.ErrClientSecretRequired
	}

	o := newOptions(opts)

	provider := &ClientCredentialsProvider{
		endpoint: o.endpoint(clientID, clientSecret),
		store:    iauth.NewTokenStore(nil),
		now:      o.now,
		logger:   o.logger,
		onFetch:  o.onRefresh,
	}

	_, err := provider.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	return provider, nil
}

// ClientID implements helix.AuthProvider.
func (p *ClientCredentialsProvider) ClientID() string {
	return p.endpoint.ClientID()
}

// TokenType implements helix.AuthProvider.
func (p *ClientCredentialsProvider) TokenType() helix.TokenType {
	return helix.TokenTypeApp
}

// CurrentScopes implements helix.AuthProvider.
func (p *ClientCredentialsProvider) CurrentScopes() []string {
	return []string{}
}

// CurrentToken implements helix.TokenHolder.
func (p *ClientCredentialsProvider) CurrentToken() *helix.AccessToken {
	return p.store.Get()
}

// SetAccessToken implements helix.TokenHolder.
func (p *ClientCredentialsProvider) SetAccessToken(token *helix.AccessToken) {
	p.store.Set(token)
}

// GetAccessToken implements helix.AuthProvider. The cached token is returned
// until it is within constants.AppTokenRefreshBuffer of expiry.
func (p *ClientCredentialsProvider) GetAccessToken(ctx context.Context, scopes ...string) (*helix.AccessToken, error) {
	scopes = iauth.NormalizeScopes(scopes)
	if len(scopes) > 0 {
		return nil, &helix.ScopeError{
			Requested: scopes,
			Missing:   scopes,
			Reason:    "app tokens carry no user scopes",
		}
	}

	token := p.store.Get()
	if p.usable(token) {
		return token, nil
	}

	return p.fetch(ctx, token)
}

// Refresh implements helix.Refresher. It always fetches a new app token.
func (p *ClientCredentialsProvider) Refresh(ctx context.Context) (*helix.AccessToken, error) {
	return p.fetch(ctx, p.store.Get())
}

// RefreshRejected implements helix.RejectionRefresher.
func (p *ClientCredentialsProvider) RefreshRejected(ctx context.Context, rejected *helix.AccessToken) (*helix.AccessToken, error) {
	return p.fetch(ctx, rejected)
}

// fetch runs one grant for all concurrent callers. A caller that saw an
// older token than the store now holds gets the newer one without a grant.
func (p *ClientCredentialsProvider) fetch(ctx context.Context, seen *helix.AccessToken) (*helix.AccessToken, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	ch := p.group.DoChan("client_credentials", func() (interface{}, error) {
		current := p.store.Get()
		if current != nil && !current.Equal(seen) && p.usable(current) {
			return current, nil
		}

		token, err := p.endpoint.ClientCredentials(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		p.store.Set(token)

		if p.logger != nil {
			p.logger.Info("app token obtained", map[string]interface{}{
				"client_id": p.endpoint.ClientID(),
			})
		}

		notify(ctx, p.onFetch, token, p.logger)

		return token, nil
	})

	return awaitToken(ctx, ch)
}

func (p *ClientCredentialsProvider) usable(token *helix.AccessToken) bool {
	return iauth.Usable(token, p.now(), constants.AppTokenRefreshBuffer)
}

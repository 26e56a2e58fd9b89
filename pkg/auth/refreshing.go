package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	iauth "github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"golang.org/x/sync/singleflight"
)

var (
	_ helix.AuthProvider       = (*RefreshingProvider)(nil)
	_ helix.Refresher          = (*RefreshingProvider)(nil)
	_ helix.RejectionRefresher = (*RefreshingProvider)(nil)
	_ helix.TokenHolder        = (*RefreshingProvider)(nil)
)

// HolderProvider is a provider whose token a RefreshingProvider can replace.
type HolderProvider interface {
	helix.AuthProvider
	helix.TokenHolder
}

// RefreshingProvider keeps a child provider's user token fresh with the
// refresh-token grant.
type RefreshingProvider struct {
	child          HolderProvider
	endpoint       *iauth.Endpoint
	group          singleflight.Group
	now            func() time.Time
	logger         helix.Logger
	onRefresh      RefreshCallback
	overrideExpiry time.Time

	mu           sync.Mutex
	refreshToken string
}

// NewRefreshingProvider wraps child. refreshToken may be empty when the
// child's token carries one.
func NewRefreshingProvider(child HolderProvider, refreshToken, clientSecret string, opts ...Option) (*RefreshingProvider, error) {
	if child == nil {
		return nil, helix.ErrNoAuthProvider
	}

	if clientSecret == "" {
		return nil, helix.ErrClientSecretRequired
	}

	if refreshToken == "" {
		if current := child.CurrentToken(); current != nil {
			refreshToken = current.RefreshToken
		}
	}

	if refreshToken == "" {
		return nil, helix.ErrNoRefreshToken
	}

	o := newOptions(opts)

	return &RefreshingProvider{
		child:          child,
		endpoint:       o.endpoint(child.ClientID(), clientSecret),
		now:            o.now,
		logger:         o.logger,
		onRefresh:      o.onRefresh,
		overrideExpiry: o.overrideExpiry,
		refreshToken:   refreshToken,
	}, nil
}

// NewUserProvider builds a refreshing provider around a static holder for
// token. A token carrying only a refresh token is exchanged on first use.
func NewUserProvider(clientID, clientSecret string, token *helix.AccessToken, opts ...Option) (*RefreshingProvider, error) {
	if token == nil {
		return nil, helix.ErrNoRefreshToken
	}

	initial := token
	if token.AccessToken == "" {
		initial = nil
	}

	child, err := NewStaticProvider(clientID, initial, opts...)
	if err != nil {
		return nil, err
	}

	return NewRefreshingProvider(child, token.RefreshToken, clientSecret, opts...)
}

// ClientID implements helix.AuthProvider.
func (p *RefreshingProvider) ClientID() string {
	return p.child.ClientID()
}

// TokenType implements helix.AuthProvider.
func (p *RefreshingProvider) TokenType() helix.TokenType {
	return p.child.TokenType()
}

// CurrentScopes implements helix.AuthProvider.
func (p *RefreshingProvider) CurrentScopes() []string {
	return p.child.CurrentScopes()
}

// CurrentToken implements helix.TokenHolder.
func (p *RefreshingProvider) CurrentToken() *helix.AccessToken {
	return p.child.CurrentToken()
}

// SetAccessToken implements helix.TokenHolder. A refresh token carried by
// token becomes the one used for the next refresh.
func (p *RefreshingProvider) SetAccessToken(token *helix.AccessToken) {
	p.child.SetAccessToken(token)

	if token != nil && token.RefreshToken != "" {
		p.mu.Lock()
		p.refreshToken = token.RefreshToken
		p.mu.Unlock()
	}
}

// RefreshToken returns the refresh token the next refresh will use.
func (p *RefreshingProvider) RefreshToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.refreshToken
}

// GetAccessToken implements helix.AuthProvider.
func (p *RefreshingProvider) GetAccessToken(ctx context.Context, scopes ...string) (*helix.AccessToken, error) {
	return p.getAccessToken(ctx, iauth.NormalizeScopes(scopes), false)
}

// Refresh implements helix.Refresher. Callers arriving while a refresh is in
// flight share its result.
func (p *RefreshingProvider) Refresh(ctx context.Context) (*helix.AccessToken, error) {
	return p.refresh(ctx, p.child.CurrentToken())
}

// RefreshRejected implements helix.RejectionRefresher.
func (p *RefreshingProvider) RefreshRejected(ctx context.Context, rejected *helix.AccessToken) (*helix.AccessToken, error) {
	return p.refresh(ctx, rejected)
}

func (p *RefreshingProvider) getAccessToken(ctx context.Context, scopes []string, reinvoked bool) (*helix.AccessToken, error) {
	token := p.child.CurrentToken()

	if token != nil && len(token.MissingScopes(scopes...)) > 0 {
		upgraded, changed, err := p.upgrade(ctx, token, scopes)
		if err != nil {
			return nil, err
		}

		if changed {
			token = upgraded
		}
	}

	if !p.valid(token) {
		refreshed, err := p.refresh(ctx, token)
		if err != nil {
			return nil, err
		}

		if token == nil && !reinvoked {
			return p.getAccessToken(ctx, scopes, true)
		}

		token = refreshed
	}

	missing := token.MissingScopes(scopes...)
	if len(missing) > 0 {
		return nil, &helix.ScopeError{
			Requested: scopes,
			Missing:   missing,
			Reason:    "refreshed token was not granted these scopes",
		}
	}

	return token, nil
}

// upgrade asks the child for a token carrying scopes. A child that cannot
// upgrade reports changed=false rather than an error.
func (p *RefreshingProvider) upgrade(ctx context.Context, current *helix.AccessToken, scopes []string) (*helix.AccessToken, bool, error) {
	if upgrader, ok := p.child.(helix.ScopeUpgrader); ok {
		return upgrader.UpgradeScopes(ctx, scopes)
	}

	token, err := p.child.GetAccessToken(ctx, scopes...)
	if err != nil {
		if helix.IsScopeError(err) || errors.Is(err, helix.ErrNoAccessToken) {
			return current, false, nil
		}

		return nil, false, err
	}

	return token, !token.Equal(current), nil
}

// valid applies the override expiry while it lasts, then the token's own.
func (p *RefreshingProvider) valid(token *helix.AccessToken) bool {
	if token == nil || token.AccessToken == "" {
		return false
	}

	now := p.now()
	if !p.overrideExpiry.IsZero() && now.Before(p.overrideExpiry) {
		return true
	}

	return !token.IsExpiredAt(now)
}

func (p *RefreshingProvider) refresh(ctx context.Context, seen *helix.AccessToken) (*helix.AccessToken, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	ch := p.group.DoChan("refresh", func() (interface{}, error) {
		current := p.child.CurrentToken()
		if current != nil && !current.Equal(seen) && p.valid(current) {
			return current, nil
		}

		token, err := p.endpoint.Refresh(context.WithoutCancel(ctx), p.RefreshToken())
		if err != nil {
			return nil, err
		}

		p.SetAccessToken(token)

		if p.logger != nil {
			p.logger.Info("user token refreshed", map[string]interface{}{
				"client_id": p.child.ClientID(),
				"scopes":    token.Scopes,
			})
		}

		notify(ctx, p.onRefresh, token, p.logger)

		return token, nil
	})

	return awaitToken(ctx, ch)
}

// awaitToken waits for a shared grant, giving up early when ctx ends. The
// grant itself runs to completion for the other waiters.
func awaitToken(ctx context.Context, ch <-chan singleflight.Result) (*helix.AccessToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return nil, result.Err
		}

		token, _ := result.Val.(*helix.AccessToken)

		return token, nil
	}
}

func notify(ctx context.Context, callback RefreshCallback, token *helix.AccessToken, logger helix.Logger) {
	if callback == nil {
		return
	}

	err := callback(context.WithoutCancel(ctx), token)
	if err != nil && logger != nil {
		logger.Warn("refresh callback failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

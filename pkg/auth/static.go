package auth

import (
	"context"
	"fmt"
	"sync"

	iauth "github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
)

var (
	_ helix.AuthProvider = (*StaticProvider)(nil)
	_ helix.TokenHolder  = (*StaticProvider)(nil)
)

// StaticProvider hands out one externally obtained token. It never refreshes
// and never upgrades; a scope the token lacks fails with *helix.ScopeError.
type StaticProvider struct {
	clientID  string
	tokenType helix.TokenType
	store     *iauth.TokenStore
	endpoint  *iauth.Endpoint
	validate  bool
	logger    helix.Logger

	// learnMu serializes scope discovery through the validation endpoint.
	learnMu sync.Mutex
}

// NewStaticProvider wraps token. Scopes come from the token, WithScopes, or,
// with WithValidation, from the validation endpoint once a scope is requested.
// A nil token is allowed when the provider only serves as a refreshing
// provider's holder.
func NewStaticProvider(clientID string, token *helix.AccessToken, opts ...Option) (*StaticProvider, error) {
	if clientID == "" {
		return nil, helix.ErrClientIDRequired
	}

	o := newOptions(opts)

	if token != nil && o.scopes != nil {
		withScopes := *token
		withScopes.Scopes = o.scopes
		token = &withScopes
	}

	return &StaticProvider{
		clientID:  clientID,
		tokenType: o.tokenType,
		store:     iauth.NewTokenStore(token),
		endpoint:  o.endpoint(clientID, ""),
		validate:  o.validate,
		logger:    o.logger,
	}, nil
}

// ClientID implements helix.AuthProvider.
func (p *StaticProvider) ClientID() string {
	return p.clientID
}

// TokenType implements helix.AuthProvider.
func (p *StaticProvider) TokenType() helix.TokenType {
	return p.tokenType
}

// CurrentScopes implements helix.AuthProvider. Scopes not learned yet are reported as none.
func (p *StaticProvider) CurrentScopes() []string {
	return p.store.Scopes()
}

// CurrentToken implements helix.TokenHolder.
func (p *StaticProvider) CurrentToken() *helix.AccessToken {
	return p.store.Get()
}

// SetAccessToken implements helix.TokenHolder.
func (p *StaticProvider) SetAccessToken(token *helix.AccessToken) {
	p.store.Set(token)
}

// GetAccessToken implements helix.AuthProvider.
func (p *StaticProvider) GetAccessToken(ctx context.Context, scopes ...string) (*helix.AccessToken, error) {
	scopes = iauth.NormalizeScopes(scopes)

	token := p.store.Get()
	if token == nil {
		return nil, helix.ErrNoAccessToken
	}

	if len(scopes) == 0 {
		return token, nil
	}

	if token.Scopes == nil && p.validate {
		learned, err := p.learnScopes(ctx, token)
		if err != nil {
			return nil, err
		}

		token = learned
	}

	missing := token.MissingScopes(scopes...)
	if len(missing) > 0 {
		return nil, &helix.ScopeError{
			Requested: scopes,
			Missing:   missing,
			Reason:    "static token cannot be upgraded",
		}
	}

	return token, nil
}

// learnScopes asks the validation endpoint once and stores a copy of the
// token carrying the answer.
func (p *StaticProvider) learnScopes(ctx context.Context, token *helix.AccessToken) (*helix.AccessToken, error) {
	p.learnMu.Lock()
	defer p.learnMu.Unlock()

	current := p.store.Get()
	if current != nil && current.Scopes != nil {
		return current, nil
	}

	info, err := p.endpoint.Validate(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to learn token scopes: %w", err)
	}

	learned := *token
	learned.Scopes = iauth.NormalizeScopes(info.Scopes)

	p.store.CompareAndSet(token, &learned)

	if p.logger != nil {
		p.logger.Debug("learned token scopes", map[string]interface{}{
			"client_id": p.clientID,
			"scopes":    learned.Scopes,
		})
	}

	return &learned, nil
}

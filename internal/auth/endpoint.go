package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fivetwenty-io/helix/internal/constants"
	helixhttp "github.com/fivetwenty-io/helix/internal/http"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Endpoint talks to the OAuth2 token endpoint: grants, validation and revocation.
// It holds the application's credentials but no token state.
type Endpoint struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *helixhttp.Client
	logger       helix.Logger
	now          func() time.Time
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithLogger sets the logger.
func WithLogger(logger helix.Logger) EndpointOption {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

// WithHTTPClient replaces the transport used for every token endpoint call.
func WithHTTPClient(client *helixhttp.Client) EndpointOption {
	return func(e *Endpoint) {
		e.httpClient = client
	}
}

// WithClock replaces time.Now when stamping obtained tokens.
func WithClock(now func() time.Time) EndpointOption {
	return func(e *Endpoint) {
		e.now = now
	}
}

// NewEndpoint creates a token endpoint client. An empty baseURL selects the
// public token endpoint.
func NewEndpoint(baseURL, clientID, clientSecret string, opts ...EndpointOption) *Endpoint {
	if baseURL == "" {
		baseURL = constants.DefaultAuthBaseURL
	}

	endpoint := &Endpoint{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(endpoint)
	}

	if endpoint.httpClient == nil {
		endpoint.httpClient = helixhttp.NewClient(endpoint.baseURL,
			helixhttp.WithLogger(endpoint.logger),
			helixhttp.WithRetryConfig(constants.TokenRetryMax, constants.DefaultRetryWaitMin, constants.DefaultRetryWaitMax),
			helixhttp.WithTimeout(constants.ShortHTTPTimeout),
		)
	}

	return endpoint
}

// ClientID returns the application's client id.
func (e *Endpoint) ClientID() string {
	return e.clientID
}

// BaseURL returns the token endpoint root.
func (e *Endpoint) BaseURL() string {
	return e.baseURL
}

// AuthCodeURL builds the authorization URL a user visits to grant scopes.
func (e *Endpoint) AuthCodeURL(redirectURI, state string, scopes ...string) string {
	cfg := e.oauthConfig(redirectURI, scopes)

	return cfg.AuthCodeURL(state)
}

// ClientCredentials obtains an app token through the client-credentials grant.
func (e *Endpoint) ClientCredentials(ctx context.Context, scopes ...string) (*helix.AccessToken, error) {
	if e.clientSecret == "" {
		return nil, helix.ErrClientSecretRequired
	}

	cfg := &clientcredentials.Config{
		ClientID:     e.clientID,
		ClientSecret: e.clientSecret,
		TokenURL:     e.baseURL + "/token",
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tok, err := cfg.Token(e.oauthContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("client credentials grant failed: %w", e.translate(err))
	}

	e.logGrant("client_credentials")

	return e.convert(tok, ""), nil
}

// ExchangeCode trades an authorization code for a user token.
func (e *Endpoint) ExchangeCode(ctx context.Context, code, redirectURI string) (*helix.AccessToken, error) {
	if e.clientSecret == "" {
		return nil, helix.ErrClientSecretRequired
	}

	cfg := e.oauthConfig(redirectURI, nil)

	tok, err := cfg.Exchange(e.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange failed: %w", e.translate(err))
	}

	e.logGrant("authorization_code")

	return e.convert(tok, ""), nil
}

// Refresh runs the refresh-token grant. The returned token carries the
// rotated refresh token, or the one supplied when the server sent none.
func (e *Endpoint) Refresh(ctx context.Context, refreshToken string) (*helix.AccessToken, error) {
	if refreshToken == "" {
		return nil, helix.ErrNoRefreshToken
	}

	if e.clientSecret == "" {
		return nil, helix.ErrClientSecretRequired
	}

	cfg := e.oauthConfig("", nil)

	tok, err := cfg.TokenSource(e.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token grant failed: %w", e.translate(err))
	}

	e.logGrant("refresh_token")

	return e.convert(tok, refreshToken), nil
}

// Validate asks the endpoint what it knows about accessToken. A rejected
// token yields *helix.InvalidTokenError.
func (e *Endpoint) Validate(ctx context.Context, accessToken string) (*helix.TokenInfo, error) {
	resp, err := e.httpClient.Do(ctx, &helixhttp.Request{
		Method:  http.MethodGet,
		Path:    e.path("/validate"),
		Headers: map[string]string{"Authorization": "OAuth " + accessToken},
	})
	if err != nil {
		statusErr := &helix.HTTPStatusError{}
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return nil, &helix.InvalidTokenError{StatusCode: statusErr.StatusCode, Body: statusErr.Body}
		}

		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	var info helix.TokenInfo

	err = json.Unmarshal(resp.Body, &info)
	if err != nil {
		return nil, fmt.Errorf("failed to parse validation response: %w", err)
	}

	return &info, nil
}

// Revoke invalidates accessToken.
func (e *Endpoint) Revoke(ctx context.Context, accessToken string) error {
	_, err := e.httpClient.PostForm(ctx, e.path("/revoke"), url.Values{
		"client_id": {e.clientID},
		"token":     {accessToken},
	})
	if err != nil {
		return fmt.Errorf("token revocation failed: %w", err)
	}

	if e.logger != nil {
		e.logger.Debug("token revoked", map[string]interface{}{"client_id": e.clientID})
	}

	return nil
}

func (e *Endpoint) oauthConfig(redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.clientID,
		ClientSecret: e.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   e.baseURL + "/authorize",
			TokenURL:  e.baseURL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthContext routes the oauth2 library through the shared transport.
func (e *Endpoint) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient.StandardClient())
}

// path makes the request absolute when the transport has another base.
func (e *Endpoint) path(p string) string {
	if e.httpClient.BaseURL() == e.baseURL {
		return p
	}

	return e.baseURL + p
}

// translate maps an oauth2 grant failure to *helix.HTTPStatusError.
func (e *Endpoint) translate(err error) error {
	retrieveErr := &oauth2.RetrieveError{}
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return err
	}

	resp := retrieveErr.Response
	target := ""

	if resp.Request != nil && resp.Request.URL != nil {
		clean := *resp.Request.URL
		clean.RawQuery = ""
		target = clean.String()
	}

	method := http.MethodPost
	if resp.Request != nil {
		method = resp.Request.Method
	}

	return helix.NewHTTPStatusError(resp.StatusCode, method, target, retrieveErr.Body)
}

func (e *Endpoint) convert(tok *oauth2.Token, fallbackRefresh string) *helix.AccessToken {
	token := &helix.AccessToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       scopesOf(tok),
		ObtainedAt:   e.now(),
	}

	if token.RefreshToken == "" {
		token.RefreshToken = fallbackRefresh
	}

	if tok.ExpiresIn > 0 {
		expiresIn := int(tok.ExpiresIn)
		token.ExpiresIn = &expiresIn
	}

	return token
}

func (e *Endpoint) logGrant(grant string) {
	if e.logger == nil {
		return
	}

	e.logger.Debug("token obtained", map[string]interface{}{
		"grant_type": grant,
		"client_id":  e.clientID,
	})
}

// scopesOf reads the granted scopes, sent either as a JSON array or as a
// space-separated string.
func scopesOf(tok *oauth2.Token) []string {
	switch raw := tok.Extra("scope").(type) {
	case []interface{}:
		scopes := make([]string, 0, len(raw))

		for _, item := range raw {
			if scope, ok := item.(string); ok && scope != "" {
				scopes = append(scopes, scope)
			}
		}

		return scopes
	case string:
		return strings.Fields(raw)
	default:
		return []string{}
	}
}

// Package auth implements the OAuth2 token endpoint client and the token
// bookkeeping shared by the auth providers.
package auth

import (
	"slices"
	"sync"
	"time"

	"github.com/fivetwenty-io/helix/pkg/helix"
)

// TokenStore holds the current token. Tokens are immutable values, so
// readers may keep the returned pointer after the store moves on.
type TokenStore struct {
	mutex sync.RWMutex
	token *helix.AccessToken
}

// NewTokenStore creates a store, optionally seeded with token.
func NewTokenStore(token *helix.AccessToken) *TokenStore {
	return &TokenStore{token: token}
}

// Get returns the current token, or nil.
func (s *TokenStore) Get() *helix.AccessToken {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.token
}

// Set replaces the current token.
func (s *TokenStore) Set(token *helix.AccessToken) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.token = token
}

// CompareAndSet replaces the token only if the store still holds old.
// It reports whether the swap happened.
func (s *TokenStore) CompareAndSet(old, token *helix.AccessToken) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.token.Equal(old) {
		return false
	}

	s.token = token

	return true
}

// Scopes returns a copy of the current token's scopes.
func (s *TokenStore) Scopes() []string {
	token := s.Get()
	if token == nil {
		return []string{}
	}

	return slices.Clone(token.Scopes)
}

// Usable reports whether token can still be sent at now, treating a token
// that expires within buffer as already expired.
func Usable(token *helix.AccessToken, now time.Time, buffer time.Duration) bool {
	if token == nil || token.AccessToken == "" {
		return false
	}

	return !token.IsExpiredAt(now.Add(buffer))
}

// NormalizeScopes drops empty and duplicate scopes, keeping first-seen order.
func NormalizeScopes(scopes []string) []string {
	normalized := make([]string, 0, len(scopes))

	for _, scope := range scopes {
		if scope == "" || slices.Contains(normalized, scope) {
			continue
		}

		normalized = append(normalized, scope)
	}

	return normalized
}

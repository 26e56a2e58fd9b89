package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer imitates the OAuth2 token endpoint and counts calls per operation.
type tokenServer struct {
	*httptest.Server

	mu             sync.Mutex
	calls          map[string]int
	refreshSeen    []string
	issued         int
	grantedScopes  []string
	validateScopes []string
	failRefresh    bool
	delay          time.Duration
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{calls: make(map[string]int)}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.Close)

	return ts
}

func (ts *tokenServer) handle(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	ts.mu.Lock()
	delay := ts.delay
	ts.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/validate":
		ts.calls["validate"]++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"client_id": "client-id",
			"login":     "someone",
			"user_id":   "42",
			"scopes":    ts.validateScopes,
		})
	case "/revoke":
		ts.calls["revoke"]++
	case "/token":
		grant := r.PostForm.Get("grant_type")
		ts.calls[grant]++

		if grant == "refresh_token" {
			ts.refreshSeen = append(ts.refreshSeen, r.PostForm.Get("refresh_token"))

			if ts.failRefresh {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 400, "message": "Invalid refresh token"})

				return
			}
		}

		ts.issued++

		body := map[string]interface{}{
			"access_token": fmt.Sprintf("access-%d", ts.issued),
			"expires_in":   3600,
			"token_type":   "bearer",
		}

		if grant != "client_credentials" {
			body["refresh_token"] = fmt.Sprintf("refresh-%d", ts.issued)
			body["scope"] = ts.grantedScopes
		}

		_ = json.NewEncoder(w).Encode(body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (ts *tokenServer) count(op string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	return ts.calls[op]
}

func (ts *tokenServer) total() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	total := 0
	for _, n := range ts.calls {
		total += n
	}

	return total
}

func (ts *tokenServer) set(fn func(ts *tokenServer)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	fn(ts)
}

// fakeClock is a settable clock shared between a test and a provider.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = now
}

func intPtr(i int) *int {
	return &i
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) { ts.grantedScopes = []string{"chat:read"} })

	token, err := auth.ExchangeCode(context.Background(), "client-id", "secret", "code", "http://localhost:3000",
		auth.WithAuthBaseURL(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, "refresh-1", token.RefreshToken)
	assert.Equal(t, []string{"chat:read"}, token.Scopes)
	assert.Equal(t, 1, server.count("authorization_code"))

	_, err = auth.ExchangeCode(context.Background(), "", "secret", "code", "http://localhost:3000")
	require.ErrorIs(t, err, helix.ErrClientIDRequired)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) { ts.validateScopes = []string{"user:read:email"} })

	info, err := auth.ValidateToken(context.Background(), "token", auth.WithAuthBaseURL(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "someone", info.Login)
	assert.Equal(t, []string{"user:read:email"}, info.Scopes)

	_, err = auth.ValidateToken(context.Background(), "")
	require.ErrorIs(t, err, helix.ErrNoAccessToken)
}

func TestRevokeToken(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)

	err := auth.RevokeToken(context.Background(), "client-id", "token", auth.WithAuthBaseURL(server.URL),
		auth.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	require.NoError(t, err)
	assert.Equal(t, 1, server.count("revoke"))

	require.ErrorIs(t, auth.RevokeToken(context.Background(), "", "token"), helix.ErrClientIDRequired)
	require.ErrorIs(t, auth.RevokeToken(context.Background(), "client-id", ""), helix.ErrNoAccessToken)
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()

	raw := auth.AuthorizationURL("client-id", "http://localhost:3000", "xyz", []string{"chat:read"})

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "id.twitch.tv", parsed.Host)
	assert.Equal(t, "/oauth2/authorize", parsed.Path)
	assert.Equal(t, "chat:read", parsed.Query().Get("scope"))
	assert.Equal(t, "xyz", parsed.Query().Get("state"))
}

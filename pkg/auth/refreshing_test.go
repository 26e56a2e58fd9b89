package auth_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0            = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	errPersisting = errors.New("config not writable")
)

func staleToken() *helix.AccessToken {
	return &helix.AccessToken{
		AccessToken:  "stale",
		RefreshToken: "refresh-0",
		Scopes:       []string{"chat:read"},
		ExpiresIn:    intPtr(3600),
		ObtainedAt:   t0.Add(-2 * time.Hour),
	}
}

func freshToken() *helix.AccessToken {
	return &helix.AccessToken{
		AccessToken:  "fresh",
		RefreshToken: "refresh-0",
		Scopes:       []string{"chat:read"},
		ExpiresIn:    intPtr(3600),
		ObtainedAt:   t0,
	}
}

func TestRefreshingProvider_OverrideExpiryWindow(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) { ts.grantedScopes = []string{"chat:read"} })

	clock := newFakeClock(t0)
	overrideUntil := t0.Add(10 * time.Minute)

	provider, err := auth.NewUserProvider("client-id", "secret", staleToken(),
		auth.WithAuthBaseURL(server.URL),
		auth.WithClock(clock.Now),
		auth.WithOverrideExpiry(overrideUntil),
	)
	require.NoError(t, err)

	for _, at := range []time.Time{t0, t0.Add(5 * time.Minute), overrideUntil.Add(-time.Second)} {
		clock.Set(at)

		token, err := provider.GetAccessToken(context.Background(), "chat:read")
		require.NoError(t, err)
		assert.Equal(t, "stale", token.AccessToken)
	}

	assert.Equal(t, 0, server.count("refresh_token"))

	for _, at := range []time.Time{overrideUntil, overrideUntil.Add(time.Minute), overrideUntil.Add(30 * time.Minute)} {
		clock.Set(at)

		token, err := provider.GetAccessToken(context.Background(), "chat:read")
		require.NoError(t, err)
		assert.Equal(t, "access-1", token.AccessToken)
	}

	assert.Equal(t, 1, server.count("refresh_token"))
}

func TestRefreshingProvider_ValidTokenIsNotRefreshed(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)

	provider, err := auth.NewUserProvider("client-id", "secret", freshToken(),
		auth.WithAuthBaseURL(server.URL), auth.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	token, err := provider.GetAccessToken(context.Background(), "chat:read")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	assert.Equal(t, 0, server.total())
	assert.Equal(t, helix.TokenTypeUser, provider.TokenType())
	assert.Equal(t, []string{"chat:read"}, provider.CurrentScopes())
}

func TestRefreshingProvider_RefreshRotatesAndNotifies(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) { ts.grantedScopes = []string{"chat:read"} })

	var (
		mu        sync.Mutex
		persisted []*helix.AccessToken
	)

	provider, err := auth.NewUserProvider("client-id", "secret", freshToken(),
		auth.WithAuthBaseURL(server.URL),
		auth.WithClock(func() time.Time { return t0 }),
		auth.WithOnRefresh(func(_ context.Context, token *helix.AccessToken) error {
			mu.Lock()
			defer mu.Unlock()

			persisted = append(persisted, token)

			return errPersisting
		}),
	)
	require.NoError(t, err)

	first, err := provider.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", first.AccessToken)
	assert.Equal(t, "refresh-1", provider.RefreshToken())
	assert.Same(t, first, provider.CurrentToken())

	second, err := provider.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", second.AccessToken)

	server.set(func(ts *tokenServer) {
		assert.Equal(t, []string{"refresh-0", "refresh-1"}, ts.refreshSeen)
	})

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, persisted, 2)
	assert.Same(t, second, persisted[1])
}

func TestRefreshingProvider_RefreshRejected(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)

	provider, err := auth.NewUserProvider("client-id", "secret", freshToken(),
		auth.WithAuthBaseURL(server.URL),
		auth.WithClock(func() time.Time { return t0 }),
	)
	require.NoError(t, err)

	rejected := provider.CurrentToken()

	first, err := provider.RefreshRejected(context.Background(), rejected)
	require.NoError(t, err)
	assert.Equal(t, "access-1", first.AccessToken)

	// A second caller rejected with the same old token gets the new one.
	second, err := provider.RefreshRejected(context.Background(), rejected)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, server.count("refresh_token"))

	third, err := provider.RefreshRejected(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "access-2", third.AccessToken)
	assert.Equal(t, 2, server.count("refresh_token"))
}

func TestRefreshingProvider_SingleFlight(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) {
		ts.grantedScopes = []string{"chat:read"}
		ts.delay = 100 * time.Millisecond
	})

	provider, err := auth.NewUserProvider("client-id", "secret", staleToken(),
		auth.WithAuthBaseURL(server.URL), auth.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	const callers = 10

	var wg sync.WaitGroup

	tokens := make([]*helix.AccessToken, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tokens[i], errs[i] = provider.GetAccessToken(context.Background(), "chat:read")
		}()
	}

	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", tokens[i].AccessToken)
	}

	assert.Equal(t, 1, server.count("refresh_token"))
}

func TestRefreshingProvider_BareRefreshToken(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) { ts.grantedScopes = []string{"chat:read", "chat:edit"} })

	provider, err := auth.NewUserProvider("client-id", "secret", &helix.AccessToken{RefreshToken: "refresh-0"},
		auth.WithAuthBaseURL(server.URL), auth.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	assert.Nil(t, provider.CurrentToken())

	token, err := provider.GetAccessToken(context.Background(), "chat:edit")
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, []string{"chat:read", "chat:edit"}, provider.CurrentScopes())
	assert.Equal(t, 1, server.count("refresh_token"))
}

func TestRefreshingProvider_MissingScopeAfterRefresh(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) { ts.grantedScopes = []string{"chat:read"} })

	provider, err := auth.NewUserProvider("client-id", "secret", staleToken(),
		auth.WithAuthBaseURL(server.URL), auth.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	_, err = provider.GetAccessToken(context.Background(), "moderator:manage:banned_users")
	require.Error(t, err)

	scopeErr := &helix.ScopeError{}
	require.ErrorAs(t, err, &scopeErr)
	assert.Equal(t, []string{"moderator:manage:banned_users"}, scopeErr.Missing)
	assert.Equal(t, 1, server.count("refresh_token"))
}

func TestRefreshingProvider_RefreshFailure(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	server.set(func(ts *tokenServer) { ts.failRefresh = true })

	provider, err := auth.NewUserProvider("client-id", "secret", staleToken(),
		auth.WithAuthBaseURL(server.URL), auth.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	_, err = provider.GetAccessToken(context.Background())
	require.Error(t, err)

	statusErr := &helix.HTTPStatusError{}
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "stale", provider.CurrentToken().AccessToken)
}

// upgradingChild is a holder that can upgrade scopes on request.
type upgradingChild struct {
	*auth.StaticProvider

	upgraded *helix.AccessToken
	changed  bool
	calls    int
}

func (c *upgradingChild) UpgradeScopes(_ context.Context, _ []string) (*helix.AccessToken, bool, error) {
	c.calls++

	if !c.changed {
		return c.CurrentToken(), false, nil
	}

	c.SetAccessToken(c.upgraded)

	return c.upgraded, true, nil
}

func TestRefreshingProvider_UpgradeChangedSignal(t *testing.T) {
	t.Parallel()

	newChild := func(t *testing.T, changed bool) *upgradingChild {
		t.Helper()

		static, err := auth.NewStaticProvider("client-id", freshToken())
		require.NoError(t, err)

		upgraded := freshToken()
		upgraded.AccessToken = "upgraded"
		upgraded.Scopes = []string{"chat:read", "chat:edit"}

		return &upgradingChild{StaticProvider: static, upgraded: upgraded, changed: changed}
	}

	t.Run("changed upgrade is trusted", func(t *testing.T) {
		t.Parallel()

		server := newTokenServer(t)
		child := newChild(t, true)

		provider, err := auth.NewRefreshingProvider(child, "", "secret",
			auth.WithAuthBaseURL(server.URL), auth.WithClock(func() time.Time { return t0 }))
		require.NoError(t, err)

		token, err := provider.GetAccessToken(context.Background(), "chat:edit")
		require.NoError(t, err)
		assert.Equal(t, "upgraded", token.AccessToken)
		assert.Equal(t, 1, child.calls)
		assert.Equal(t, 0, server.total())
	})

	t.Run("unchanged upgrade is not trusted", func(t *testing.T) {
		t.Parallel()

		server := newTokenServer(t)
		child := newChild(t, false)

		provider, err := auth.NewRefreshingProvider(child, "", "secret",
			auth.WithAuthBaseURL(server.URL), auth.WithClock(func() time.Time { return t0 }))
		require.NoError(t, err)

		_, err = provider.GetAccessToken(context.Background(), "chat:edit")
		require.True(t, helix.IsScopeError(err))
		assert.Equal(t, 1, child.calls)
		assert.Equal(t, 0, server.total())
	})
}

func TestRefreshingProvider_ConstructorErrors(t *testing.T) {
	t.Parallel()

	static, err := auth.NewStaticProvider("client-id", &helix.AccessToken{AccessToken: "token"})
	require.NoError(t, err)

	_, err = auth.NewRefreshingProvider(nil, "refresh", "secret")
	require.ErrorIs(t, err, helix.ErrNoAuthProvider)

	_, err = auth.NewRefreshingProvider(static, "refresh", "")
	require.ErrorIs(t, err, helix.ErrClientSecretRequired)

	_, err = auth.NewRefreshingProvider(static, "", "secret")
	require.ErrorIs(t, err, helix.ErrNoRefreshToken)

	_, err = auth.NewUserProvider("client-id", "secret", nil)
	require.ErrorIs(t, err, helix.ErrNoRefreshToken)
}

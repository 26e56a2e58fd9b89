package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCredentialsProvider(t *testing.T) {
	t.Parallel()

	server := newTokenServer(t)
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	var fetched []string

	provider, err := auth.NewClientCredentialsProvider(context.Background(), "client-id", "secret",
		auth.WithAuthBaseURL(server.URL),
		auth.WithClock(clock.Now),
		auth.WithOnRefresh(func(_ context.Context, token *helix.AccessToken) error {
			fetched = append(fetched, token.AccessToken)

			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, server.count("client_credentials"))

	assert.Equal(t, "client-id", provider.ClientID())
	assert.Equal(t, helix.TokenTypeApp, provider.TokenType())
	assert.Empty(t, provider.CurrentScopes())

	t.Run("cached token is reused", func(t *testing.T) {
		token, err := provider.GetAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-1", token.AccessToken)
		assert.Equal(t, 1, server.count("client_credentials"))
	})

	t.Run("scoped request fails without network", func(t *testing.T) {
		_, err := provider.GetAccessToken(context.Background(), "chat:read")
		require.True(t, helix.IsScopeError(err))
		assert.Equal(t, 1, server.count("client_credentials"))
	})

	t.Run("refresh always fetches", func(t *testing.T) {
		token, err := provider.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-2", token.AccessToken)
		assert.Equal(t, "access-2", provider.CurrentToken().AccessToken)
		assert.Equal(t, 2, server.count("client_credentials"))
	})

	t.Run("expired token is fetched again", func(t *testing.T) {
		clock.Set(clock.Now().Add(2 * time.Hour))

		token, err := provider.GetAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-3", token.AccessToken)
		assert.Equal(t, 3, server.count("client_credentials"))
	})

	t.Run("token near expiry is replaced early", func(t *testing.T) {
		current := provider.CurrentToken()
		expiresAt, ok := current.ExpiresAt()
		require.True(t, ok)

		clock.Set(expiresAt.Add(-time.Minute))

		token, err := provider.GetAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, current.AccessToken, token.AccessToken)
		assert.Equal(t, 3, server.count("client_credentials"))

		clock.Set(expiresAt.Add(-10 * time.Second))

		token, err = provider.GetAccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-4", token.AccessToken)
		assert.Equal(t, 4, server.count("client_credentials"))
	})

	t.Run("rejected token is replaced once", func(t *testing.T) {
		rejected := provider.CurrentToken()

		token, err := provider.RefreshRejected(context.Background(), rejected)
		require.NoError(t, err)
		assert.Equal(t, "access-5", token.AccessToken)

		again, err := provider.RefreshRejected(context.Background(), rejected)
		require.NoError(t, err)
		assert.Equal(t, "access-5", again.AccessToken)
		assert.Equal(t, 5, server.count("client_credentials"))
	})

	assert.Equal(t, []string{"access-1", "access-2", "access-3", "access-4", "access-5"}, fetched)
}

func TestClientCredentialsProvider_Errors(t *testing.T) {
	t.Parallel()

	_, err := auth.NewClientCredentialsProvider(context.Background(), "", "secret")
	require.ErrorIs(t, err, helix.ErrClientIDRequired)

	_, err = auth.NewClientCredentialsProvider(context.Background(), "client-id", "")
	require.ErrorIs(t, err, helix.ErrClientSecretRequired)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := newTokenServer(t)

	_, err = auth.NewClientCredentialsProvider(ctx, "client-id", "secret", auth.WithAuthBaseURL(server.URL))
	require.ErrorIs(t, err, context.Canceled)
}

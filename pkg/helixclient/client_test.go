package helixclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fivetwenty-io/helix/pkg/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/fivetwenty-io/helix/pkg/helixclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires config", func(t *testing.T) {
		t.Parallel()

		_, err := helixclient.New(context.Background(), nil)
		require.ErrorIs(t, err, helix.ErrConfigRequired)
	})

	t.Run("requires auth provider", func(t *testing.T) {
		t.Parallel()

		_, err := helixclient.New(context.Background(), &helix.Config{})
		require.ErrorIs(t, err, helix.ErrNoAuthProvider)
	})

	t.Run("normalizes base URL", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/helix/users", r.URL.Path)
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		provider, err := auth.NewStaticProvider("client-id", &helix.AccessToken{AccessToken: "token"})
		require.NoError(t, err)

		client, err := helixclient.New(context.Background(), &helix.Config{
			AuthProvider: provider,
			BaseURL:      server.URL + "/helix/",
		})
		require.NoError(t, err)
		assert.Same(t, provider, client.AuthProvider())

		body, err := client.CallAPI(context.Background(), &helix.CallDescriptor{URL: "/users"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"data":[]}`, string(body))
	})
}

func TestNewWithToken(t *testing.T) {
	t.Parallel()

	client, err := helixclient.NewWithToken(context.Background(), "client-id", "test-token")
	require.NoError(t, err)
	assert.Equal(t, "client-id", client.AuthProvider().ClientID())

	_, err = helixclient.NewWithToken(context.Background(), "", "test-token")
	require.ErrorIs(t, err, helix.ErrClientIDRequired)
}

func TestNewWithClientCredentials(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer server.Close()

	client, err := helixclient.NewWithClientCredentials(context.Background(), "client-id", "secret",
		auth.WithAuthBaseURL(server.URL))
	require.NoError(t, err)
	assert.Equal(t, helix.TokenTypeApp, client.AuthProvider().TokenType())
}

func TestNewWithUserToken(t *testing.T) {
	t.Parallel()

	client, err := helixclient.NewWithUserToken(context.Background(), "client-id", "secret",
		&helix.AccessToken{AccessToken: "user-token", RefreshToken: "refresh"})
	require.NoError(t, err)

	_, isRefresher := client.AuthProvider().(helix.Refresher)
	assert.True(t, isRefresher)

	_, err = helixclient.NewWithUserToken(context.Background(), "client-id", "secret", &helix.AccessToken{AccessToken: "user-token"})
	require.ErrorIs(t, err, helix.ErrNoRefreshToken)
}

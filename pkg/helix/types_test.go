package helix_test

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestAccessToken_Expiry(t *testing.T) {
	t.Parallel()

	obtained := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token := &helix.AccessToken{AccessToken: "abc", ExpiresIn: intPtr(3600), ObtainedAt: obtained}

	expiresAt, ok := token.ExpiresAt()
	require.True(t, ok)
	assert.Equal(t, obtained.Add(time.Hour), expiresAt)

	assert.False(t, token.IsExpiredAt(obtained.Add(59*time.Minute)))
	assert.False(t, token.IsExpiredAt(obtained.Add(time.Hour)))
	assert.True(t, token.IsExpiredAt(obtained.Add(time.Hour+time.Second)))

	forever := &helix.AccessToken{AccessToken: "abc", ObtainedAt: obtained}
	_, ok = forever.ExpiresAt()
	assert.False(t, ok)
	assert.False(t, forever.IsExpiredAt(obtained.Add(24*365*time.Hour)))
}

func TestAccessToken_MissingScopes(t *testing.T) {
	t.Parallel()

	token := &helix.AccessToken{Scopes: []string{"read", "chat:read"}}

	assert.Empty(t, token.MissingScopes())
	assert.Empty(t, token.MissingScopes("read"))
	assert.Equal(t, []string{"write"}, token.MissingScopes("read", "write"))

	var none *helix.AccessToken
	assert.Equal(t, []string{"read"}, none.MissingScopes("read"))
}

func TestAccessToken_Equal(t *testing.T) {
	t.Parallel()

	now := time.Now()
	base := &helix.AccessToken{AccessToken: "a", RefreshToken: "r", Scopes: []string{"s"}, ExpiresIn: intPtr(10), ObtainedAt: now}
	same := &helix.AccessToken{AccessToken: "a", RefreshToken: "r", Scopes: []string{"s"}, ExpiresIn: intPtr(10), ObtainedAt: now}

	assert.True(t, base.Equal(same))
	assert.False(t, base.Equal(&helix.AccessToken{AccessToken: "b", RefreshToken: "r", Scopes: []string{"s"}, ExpiresIn: intPtr(10), ObtainedAt: now}))
	assert.False(t, base.Equal(&helix.AccessToken{AccessToken: "a", RefreshToken: "r", Scopes: []string{"s", "t"}, ExpiresIn: intPtr(10), ObtainedAt: now}))
	assert.False(t, base.Equal(&helix.AccessToken{AccessToken: "a", RefreshToken: "r", Scopes: []string{"s"}, ObtainedAt: now}))
	assert.False(t, base.Equal(nil))

	var nilToken *helix.AccessToken
	assert.True(t, nilToken.Equal(nil))
}

func TestPageCursor_InvalidShape(t *testing.T) {
	t.Parallel()

	page := &helix.PageEnvelope[int]{}
	require.Error(t, json.Unmarshal([]byte(`{"data":[1],"pagination":42}`), page))
}

func TestCallDescriptor_WithQuery(t *testing.T) {
	t.Parallel()

	descriptor := &helix.CallDescriptor{
		Method: "GET",
		URL:    "/users",
		Query:  url.Values{"login": {"a", "b"}},
		Scope:  "user:read:email",
	}

	clone := descriptor.WithQuery(url.Values{"first": {"10"}})
	clone.Query.Add("login", "c")

	assert.Equal(t, url.Values{"login": {"a", "b"}}, descriptor.Query)
	assert.Equal(t, []string{"a", "b", "c"}, clone.Query["login"])
	assert.Equal(t, "10", clone.Query.Get("first"))
	assert.Equal(t, []string{"user:read:email"}, clone.Scopes())
	assert.Nil(t, (&helix.CallDescriptor{}).Scopes())
}

func TestPageEnvelope_NextCursor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		cursor string
		ok     bool
	}{
		{name: "cursor", body: `{"data":[1],"pagination":{"cursor":"abc"}}`, cursor: "abc", ok: true},
		{name: "empty pagination", body: `{"data":[1],"pagination":{}}`},
		{name: "null cursor", body: `{"data":[1],"pagination":{"cursor":null}}`},
		{name: "no pagination", body: `{"data":[1]}`},
		{name: "bare cursor string", body: `{"data":[1],"pagination":"abc"}`, cursor: "abc", ok: true},
		{name: "empty cursor string", body: `{"data":[1],"pagination":""}`},
		{name: "null pagination", body: `{"data":[1],"pagination":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page := &helix.PageEnvelope[int]{}
			require.NoError(t, json.Unmarshal([]byte(tt.body), page))

			cursor, ok := page.NextCursor()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cursor, cursor)
		})
	}
}

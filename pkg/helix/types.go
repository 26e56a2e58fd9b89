package helix

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// TokenType is the kind of credential an AuthProvider hands out.
type TokenType string

const (
	// TokenTypeApp represents the calling application; it carries no user scopes.
	TokenTypeApp TokenType = "app"

	// TokenTypeUser represents an end user who authorized the application.
	TokenTypeUser TokenType = "user"
)

// AccessToken is an immutable credential value. A refresh replaces it wholesale.
type AccessToken struct {
	AccessToken  string    `json:"access_token"            yaml:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	Scopes       []string  `json:"scope"                   yaml:"scope"`
	ExpiresIn    *int      `json:"expires_in,omitempty"    yaml:"expires_in,omitempty"`
	ObtainedAt   time.Time `json:"obtained_at"             yaml:"obtained_at"`
}

// ExpiresAt returns the expiry time, or false when the lifetime is unknown.
func (t *AccessToken) ExpiresAt() (time.Time, bool) {
	if t == nil || t.ExpiresIn == nil {
		return time.Time{}, false
	}

	return t.ObtainedAt.Add(time.Duration(*t.ExpiresIn) * time.Second), true
}

// IsExpiredAt reports whether the token is expired at the given instant.
// A token without a lifetime never expires.
func (t *AccessToken) IsExpiredAt(now time.Time) bool {
	expiresAt, ok := t.ExpiresAt()
	if !ok {
		return false
	}

	return now.After(expiresAt)
}

// IsExpired reports whether the token is expired now.
func (t *AccessToken) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// MissingScopes returns the requested scopes the token does not carry.
func (t *AccessToken) MissingScopes(scopes ...string) []string {
	var missing []string

	for _, scope := range scopes {
		if t == nil || !slices.Contains(t.Scopes, scope) {
			missing = append(missing, scope)
		}
	}

	return missing
}

// Equal reports whether two tokens are the same credential value.
func (t *AccessToken) Equal(other *AccessToken) bool {
	if t == nil || other == nil {
		return t == other
	}

	if t.AccessToken != other.AccessToken || t.RefreshToken != other.RefreshToken {
		return false
	}

	if (t.ExpiresIn == nil) != (other.ExpiresIn == nil) {
		return false
	}

	if t.ExpiresIn != nil && *t.ExpiresIn != *other.ExpiresIn {
		return false
	}

	return t.ObtainedAt.Equal(other.ObtainedAt) && slices.Equal(t.Scopes, other.Scopes)
}

// TokenInfo is the validation endpoint's view of a token.
type TokenInfo struct {
	ClientID  string   `json:"client_id"            yaml:"client_id"`
	Login     string   `json:"login,omitempty"      yaml:"login,omitempty"`
	UserID    string   `json:"user_id,omitempty"    yaml:"user_id,omitempty"`
	Scopes    []string `json:"scopes"               yaml:"scopes"`
	ExpiresIn *int     `json:"expires_in,omitempty" yaml:"expires_in,omitempty"`
}

// RateLimitBudget is the limiter's last snapshot of the server-side budget.
type RateLimitBudget struct {
	Limit     int       `json:"limit"      yaml:"limit"`
	Remaining int       `json:"remaining"  yaml:"remaining"`
	ResetsAt  time.Time `json:"resets_at"  yaml:"resets_at"`
	Known     bool      `json:"known"      yaml:"known"`
}

// CallType selects base URL and authentication for a call.
type CallType int

const (
	// CallTypeHelix targets the API base URL with client id, bearer token and rate limiting.
	CallTypeHelix CallType = iota

	// CallTypeAuth targets the token endpoint base URL without a bearer token.
	CallTypeAuth

	// CallTypeCustom uses URL as an absolute address and sends no credentials.
	CallTypeCustom
)

// PaginationOverrides adjusts how a PaginatedRequest pages through an endpoint.
type PaginationOverrides struct {
	// PageSize replaces the default "first" value; some endpoints cap it below 100.
	PageSize int
	// OmitPageSize drops the "first" parameter for endpoints that reject it.
	OmitPageSize bool
}

// CallDescriptor describes one API call. It is built once by a resource
// wrapper and never mutated afterwards.
type CallDescriptor struct {
	Type       CallType
	Method     string
	URL        string
	Query      url.Values
	JSONBody   any
	Scope      string
	Pagination *PaginationOverrides
	// CacheTTL enables the response cache for GET calls when positive.
	CacheTTL time.Duration
}

// Scopes returns the descriptor's required scope as a list.
func (d *CallDescriptor) Scopes() []string {
	if d.Scope == "" {
		return nil
	}

	return []string{d.Scope}
}

// WithQuery returns a copy of the descriptor whose query is the original
// merged with extra. The receiver is left untouched.
func (d *CallDescriptor) WithQuery(extra url.Values) *CallDescriptor {
	clone := *d

	query := url.Values{}
	for key, values := range d.Query {
		query[key] = slices.Clone(values)
	}

	for key, values := range extra {
		query[key] = slices.Clone(values)
	}

	clone.Query = query

	return &clone
}

// PageEnvelope is the raw shape of one page of a paginated response.
type PageEnvelope[T any] struct {
	Data       []T             `json:"data"`
	Pagination *PageCursor     `json:"pagination,omitempty"`
	Total      *int            `json:"total,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// PageCursor holds the opaque cursor pointing at the next page. Some
// endpoints send the pagination field as the bare cursor string.
type PageCursor struct {
	Cursor string `json:"cursor,omitempty"`
}

// UnmarshalJSON accepts both {"cursor":"..."} and "...".
func (c *PageCursor) UnmarshalJSON(data []byte) error {
	var cursor string

	err := json.Unmarshal(data, &cursor)
	if err == nil {
		c.Cursor = cursor

		return nil
	}

	var object struct {
		Cursor *string `json:"cursor"`
	}

	err = json.Unmarshal(data, &object)
	if err != nil {
		return fmt.Errorf("invalid pagination cursor: %w", err)
	}

	c.Cursor = ""
	if object.Cursor != nil {
		c.Cursor = *object.Cursor
	}

	return nil
}

// NextCursor returns the cursor for the next page, or false when the page is the last one.
func (e *PageEnvelope[T]) NextCursor() (string, bool) {
	if e == nil || e.Pagination == nil || e.Pagination.Cursor == "" {
		return "", false
	}

	return e.Pagination.Cursor, true
}

package helix

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPStatusError is returned for any non-2xx response the pipeline does not absorb.
type HTTPStatusError struct {
	StatusCode int    `json:"status"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	Body       []byte `json:"body,omitempty"`
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("encountered HTTP status code %d: %s", e.StatusCode, http.StatusText(e.StatusCode))

	if e.URL != "" {
		msg += fmt.Sprintf(" (%s %s)", e.Method, e.URL)
	}

	if len(e.Body) > 0 {
		msg += ": " + strings.TrimSpace(string(e.Body))
	}

	return msg
}

// NewHTTPStatusError builds an HTTPStatusError from a response's parts.
func NewHTTPStatusError(statusCode int, method, url string, body []byte) *HTTPStatusError {
	return &HTTPStatusError{
		StatusCode: statusCode,
		Method:     method,
		URL:        url,
		Body:       body,
	}
}

// InvalidTokenError means the token endpoint rejected a credential on validation.
type InvalidTokenError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *InvalidTokenError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("invalid token supplied (status %d)", e.StatusCode)
	}

	return fmt.Sprintf("invalid token supplied (status %d): %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// ScopeError means an AuthProvider cannot produce a token carrying the requested scopes.
type ScopeError struct {
	Requested []string
	Missing   []string
	Reason    string
}

// Error implements the error interface.
func (e *ScopeError) Error() string {
	msg := "scope unavailable: " + strings.Join(e.Missing, ", ")
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}

	return msg
}

// Static errors for err113 compliance.
var (
	ErrNoAuthProvider       = errors.New("no auth provider configured")
	ErrNoAccessToken        = errors.New("no access token available")
	ErrNoRefreshToken       = errors.New("no refresh token available")
	ErrClientIDRequired     = errors.New("client id is required")
	ErrClientSecretRequired = errors.New("client secret is required")
	ErrDescriptorRequired   = errors.New("call descriptor is required")
	ErrMapperRequired       = errors.New("pagination mapper is required")
	ErrNoTotal              = errors.New("response carries no total count")
	ErrKeyNotFound          = errors.New("key not found")
	ErrEntryExpired         = errors.New("entry expired")
	ErrCacheDisabled        = errors.New("cache disabled")
	ErrConfigRequired       = errors.New("config is required")
)

// IsNotFound checks if the error is a 404 status error.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized checks if the error is a 401 status error or an invalid token error.
func IsUnauthorized(err error) bool {
	invalidErr := &InvalidTokenError{}
	if errors.As(err, &invalidErr) {
		return true
	}

	return hasStatus(err, http.StatusUnauthorized)
}

// IsRateLimited checks if the error is a 429 that survived the limiter's retry.
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

// IsScopeError checks if the error is a scope error.
func IsScopeError(err error) bool {
	scopeErr := &ScopeError{}

	return errors.As(err, &scopeErr)
}

func hasStatus(err error, status int) bool {
	statusErr := &HTTPStatusError{}
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == status
	}

	return false
}

package constants

import "errors"

// Configuration errors.
var (
	ErrNoClientID         = errors.New("no client id configured, use 'helix config set client_id <id>'")
	ErrNoClientSecret     = errors.New("no client secret configured, use 'helix config set client_secret <secret>' or --client-secret")
	ErrNoRefreshToken     = errors.New("no refresh token stored, please run 'helix login' again")
	ErrNotAuthenticated   = errors.New("not authenticated, use 'helix login' or 'helix token app' first")
	ErrUnknownConfigKey   = errors.New("unknown configuration key")
	ErrInvalidParam       = errors.New("invalid parameter, expected key=value")
	ErrUnsupportedFormat  = errors.New("unsupported output format")
	ErrRedirectURIMissing = errors.New("redirect URI required for code exchange")
	ErrClientIDMismatch   = errors.New("config file belongs to another client id")
	ErrNoAuthFlow         = errors.New("either --code or --url is required")
)

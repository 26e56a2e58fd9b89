package constants

import "time"

// Endpoints.
const (
	// DefaultAPIBaseURL is the Helix API root.
	DefaultAPIBaseURL = "https://api.twitch.tv/helix"

	// DefaultAuthBaseURL is the OAuth2 token endpoint root.
	DefaultAuthBaseURL = "https://id.twitch.tv/oauth2"

	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "helix-go/1.0.0"
)

// Headers exchanged with the API.
const (
	// HeaderClientID carries the application's client id.
	HeaderClientID = "Client-Id"

	// HeaderRateLimitLimit is the bucket size.
	HeaderRateLimitLimit = "Ratelimit-Limit"

	// HeaderRateLimitRemaining is the number of points left in the bucket.
	HeaderRateLimitRemaining = "Ratelimit-Remaining"

	// HeaderRateLimitReset is the epoch second at which the bucket refills.
	HeaderRateLimitReset = "Ratelimit-Reset"

	// HeaderRequestID correlates log lines of one dispatch.
	HeaderRequestID = "X-Request-Id"
)

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations such as token validation.
	ShortHTTPTimeout = 10 * time.Second
)

// Token lifetimes.
const (
	// AppTokenRefreshBuffer is how long before expiry an app token is replaced.
	AppTokenRefreshBuffer = 30 * time.Second
)

// Retry limits.
const (
	// TokenRetryMax is the number of transport retries against the token endpoint.
	TokenRetryMax = 1

	// DefaultRetryWaitMin is the minimum wait between transport retries.
	DefaultRetryWaitMin = 500 * time.Millisecond

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Cache defaults.
const (
	// DefaultCacheSize is the default cache size limit.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default cache time-to-live.
	DefaultCacheTTL = 5 * time.Minute
)

// Format constants.
const (
	// FormatTable for table output format.
	FormatTable = "table"

	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"

	// JSONIndentSize is the number of spaces for JSON indentation.
	JSONIndentSize = 2
)

// UI and display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"

	// StringTruncationLength is the default length for truncating strings.
	StringTruncationLength = 80
)

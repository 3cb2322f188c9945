package oauth

import "errors"

// Sentinel errors for the provider lifecycle. HTTP-facing callers map
// these to the gateway error taxonomy; the wrapped provider detail is
// for logs only and never reaches a client.
var (
	// ErrMissingCode is returned when a callback arrives without an
	// authorization code.
	ErrMissingCode = errors.New("authorization code missing")

	// ErrStateMismatch is returned when a callback's state parameter
	// does not exactly match the single-use token issued for the
	// session. User-visible handling is identical to ErrExchangeFailed.
	ErrStateMismatch = errors.New("state parameter mismatch")

	// ErrExchangeFailed covers code-exchange and identity-verification
	// failures, including timeouts.
	ErrExchangeFailed = errors.New("provider exchange failed")

	// ErrRefreshFailed is returned when a refresh-token exchange fails.
	// Distinct from ErrNotLinked so callers can pick silent-retry
	// versus forcing a full re-authorization.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrNotLinked is returned when an operation needs stored
	// credentials and the provider was never linked.
	ErrNotLinked = errors.New("provider not linked")

	// ErrTokenInvalid is returned by validation when the provider
	// answers 401-class for stored credentials.
	ErrTokenInvalid = errors.New("provider token invalid")
)

package oauth

import "errors"

// Terminal failure kinds for an interactive authentication attempt. Exactly
// one of these (or a successful code capture) resolves each attempt; callers
// distinguish them with errors.Is.
var (
	// ErrStateMismatch indicates the state echoed back in the redirect did
	// not match the one sent, so the authorization code is not trusted.
	ErrStateMismatch = errors.New("state parameter mismatch, possible CSRF")

	// ErrProviderDenied indicates the identity provider returned an error
	// parameter in the redirect.
	ErrProviderDenied = errors.New("authorization denied by provider")

	// ErrProtocolViolation indicates the redirect carried neither an
	// authorization code nor an error.
	ErrProtocolViolation = errors.New("redirect carried neither code nor error")

	// ErrUserCancelled indicates the authentication window was closed
	// before the flow completed.
	ErrUserCancelled = errors.New("authentication cancelled by user")

	// ErrTimeout indicates no callback arrived before the flow deadline.
	ErrTimeout = errors.New("authentication timed out")

	// ErrBrowserLaunch indicates the browser (or embedded surface) could
	// not load the authorization page.
	ErrBrowserLaunch = errors.New("failed to open authentication page")

	// ErrExchangeFailed indicates the token endpoint or provider library
	// rejected the code or credential.
	ErrExchangeFailed = errors.New("token exchange failed")
)

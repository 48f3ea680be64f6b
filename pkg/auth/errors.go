package auth

import "errors"

var (
	// ErrNotInitialized indicates the facade was used before Initialize.
	ErrNotInitialized = errors.New("authentication service not initialized")

	// ErrNotSignedIn indicates no usable session exists; the caller must
	// initiate a sign-in.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrSessionExpired indicates both silent and forced token refresh
	// failed; the session identity has been cleared and a fresh interactive
	// sign-in is required.
	ErrSessionExpired = errors.New("session expired, interactive sign-in required")
)

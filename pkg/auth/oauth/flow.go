// Package oauth implements the interactive Authorization-Code-with-PKCE
// flow against Microsoft Entra ID, over two channels: an embedded browser
// surface supplied by the host application, and the OS default browser with
// an ephemeral local callback listener.
package oauth

import (
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Config contains the Entra application settings for an interactive flow.
type Config struct {
	// ClientID is the Entra application (client) ID.
	ClientID string

	// TenantID is the directory (tenant) ID.
	TenantID string

	// Scopes are the delegated scopes to request.
	Scopes []string

	// RedirectURL is the redirect URI registered for the channel in use.
	RedirectURL string
}

// OAuth2Config builds the x/oauth2 configuration for this application,
// pointed at the tenant's v2.0 endpoints.
func (c *Config) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURL,
		Scopes:      c.Scopes,
		Endpoint:    microsoft.AzureADEndpoint(c.TenantID),
	}
}

// Flow holds the transient context of one interactive authentication
// attempt: PKCE parameters and the CSRF state. It is never reused across
// attempts and never persisted.
type Flow struct {
	oauth2Config *oauth2.Config

	codeVerifier  string
	codeChallenge string
	state         string
}

// NewFlow creates a flow for one authentication attempt, generating fresh
// PKCE parameters and a fresh state.
func NewFlow(config *Config) (*Flow, error) {
	if config == nil {
		return nil, errors.New("OAuth config cannot be nil")
	}
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.TenantID == "" {
		return nil, errors.New("tenant ID is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE parameters: %w", err)
	}

	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state parameter: %w", err)
	}

	return &Flow{
		oauth2Config:  config.OAuth2Config(),
		codeVerifier:  verifier,
		codeChallenge: DeriveChallenge(verifier),
		state:         state,
	}, nil
}

// State returns the CSRF state of this attempt.
func (f *Flow) State() string {
	return f.state
}

// RedirectURL returns the redirect URI this attempt expects.
func (f *Flow) RedirectURL() string {
	return f.oauth2Config.RedirectURL
}

// AuthCodeURL builds the authorization endpoint URL for this attempt.
// Deterministic for identical configuration and state.
func (f *Flow) AuthCodeURL() string {
	return f.oauth2Config.AuthCodeURL(f.state,
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("code_challenge", f.codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// parseCallback validates the query parameters delivered by the redirect and
// extracts the authorization code. The state is verified before anything
// else; a mismatched state means the code must not be exchanged.
func (f *Flow) parseCallback(query url.Values) (string, error) {
	if query.Get("state") != f.state {
		return "", ErrStateMismatch
	}

	if errParam := query.Get("error"); errParam != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrProviderDenied, errParam, query.Get("error_description"))
	}

	code := query.Get("code")
	if code == "" {
		return "", ErrProtocolViolation
	}

	return code, nil
}

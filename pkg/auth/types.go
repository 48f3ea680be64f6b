// Package auth maintains a signed-in session against Microsoft Entra ID and
// hands out usable Graph access tokens. It fronts the interactive
// authorization-code flows in pkg/auth/oauth and the non-interactive
// client-credentials grant behind one facade.
package auth

import (
	"time"
)

// Mode selects how tokens are acquired.
type Mode string

const (
	// ModeInteractive authenticates a user through a browser channel.
	ModeInteractive Mode = "interactive"

	// ModeClientCredentials authenticates the application itself with a
	// client secret. No user, no session identity.
	ModeClientCredentials Mode = "client-credentials"
)

// Channel selects the browser channel for an interactive sign-in.
type Channel string

const (
	// ChannelEmbedded drives an embedded browser surface supplied by the
	// host application.
	ChannelEmbedded Channel = "embedded"

	// ChannelSystemBrowser opens the OS default browser and captures the
	// redirect on a local listener.
	ChannelSystemBrowser Channel = "system-browser"
)

// Config is the Entra application configuration handed to Initialize.
type Config struct {
	ClientID     string
	TenantID     string
	ClientSecret string
	Scopes       []string

	// RedirectURL is the redirect URI registered for the embedded channel.
	// The system-browser channel always uses http://localhost:<port> with a
	// freshly probed port. Defaults to http://localhost:3000.
	RedirectURL string

	// UseClientCredentials switches the facade into app-only mode. Requires
	// ClientSecret.
	UseClientCredentials bool
}

// Identity describes the signed-in user. Reconstructed from the identity
// token when present, from a Graph profile lookup otherwise, and synthesized
// as a placeholder as a last resort.
type Identity struct {
	// AccountID is the directory object id (oid claim) of the user.
	AccountID string

	TenantID    string
	Username    string
	DisplayName string

	// Placeholder marks an identity synthesized because neither the
	// identity token nor Graph could describe the user. The session is
	// still authenticated, but the profile fields carry no real data.
	Placeholder bool
}

// TokenRecord is one acquired token and its metadata.
type TokenRecord struct {
	AccessToken string
	IDToken     string
	Expiry      time.Time
	Scopes      []string

	// Mode records how this token was acquired.
	Mode Mode
}

// Valid reports whether the record's access token is still usable.
func (r *TokenRecord) Valid() bool {
	return r != nil && r.AccessToken != "" && time.Now().Before(r.Expiry)
}

// Info is the cheap authentication summary. It is computed entirely from
// in-memory state.
type Info struct {
	Mode            Mode
	IsAuthenticated bool
	ClientID        string
	TenantID        string
	Scopes          []string

	// Permissions carries the decoded token permissions, populated only by
	// InfoWithPermissions.
	Permissions []string
}

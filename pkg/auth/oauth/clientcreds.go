package oauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// ClientCredentialsConfig contains the application settings for the
// non-interactive client-credentials grant.
type ClientCredentialsConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string

	// Scopes for this grant are application permissions; Entra expects the
	// resource's /.default scope. Empty defaults to the Graph default scope.
	Scopes []string
}

// DefaultClientCredentialsScope is requested when no scopes are configured.
const DefaultClientCredentialsScope = "https://graph.microsoft.com/.default"

// ClientCredentialsAcquirer obtains app-only tokens. Every Acquire call goes
// to the token endpoint; there is no user session and nothing to cache
// beyond what the provider grants.
type ClientCredentialsAcquirer struct {
	config *clientcredentials.Config
}

// NewClientCredentialsAcquirer validates the settings and builds an acquirer
// for the tenant's token endpoint.
func NewClientCredentialsAcquirer(config *ClientCredentialsConfig) (*ClientCredentialsAcquirer, error) {
	if config == nil {
		return nil, errors.New("client credentials config cannot be nil")
	}
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.TenantID == "" {
		return nil, errors.New("tenant ID is required")
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultClientCredentialsScope}
	}

	return &ClientCredentialsAcquirer{
		config: &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     microsoft.AzureADEndpoint(config.TenantID).TokenURL,
			Scopes:       scopes,
		},
	}, nil
}

// Acquire requests a fresh app-only token from the token endpoint.
func (a *ClientCredentialsAcquirer) Acquire(ctx context.Context) (*oauth2.Token, error) {
	token, err := a.config.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return token, nil
}

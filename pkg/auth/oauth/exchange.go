package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/entralite/entralite/pkg/logger"
)

// TokenResponse is the wire shape of a successful direct token-endpoint
// exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Expiry converts the relative expires_in into an absolute timestamp.
// A missing expires_in defaults to one hour, matching provider behavior.
func (r *TokenResponse) Expiry() time.Time {
	expiresIn := r.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// Exchange swaps the authorization code for tokens through the provider
// library, binding the request to this attempt's PKCE verifier and redirect
// URI. The returned token refreshes through the library's token source.
func (f *Flow) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := f.oauth2Config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", f.codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return token, nil
}

// TokenSource returns a self-refreshing token source seeded with an
// exchanged token. Refresh happens only when the cached token is stale.
func (f *Flow) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(token, f.oauth2Config.TokenSource(ctx, token))
}

// RefreshTokenSource returns a token source that ignores any cached access
// token and redeems the refresh token immediately. Used for forced refresh.
func (f *Flow) RefreshTokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return f.oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

// ExchangeDirect swaps the authorization code for tokens with a form-encoded
// POST straight to the tenant's token endpoint, bypassing the provider
// library. A nil httpClient uses a 30-second-timeout default.
func (f *Flow) ExchangeDirect(ctx context.Context, httpClient *http.Client, code string) (*TokenResponse, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	data := url.Values{}
	data.Set("client_id", f.oauth2Config.ClientID)
	data.Set("scope", strings.Join(f.oauth2Config.Scopes, " "))
	data.Set("code", code)
	data.Set("redirect_uri", f.oauth2Config.RedirectURL)
	data.Set("grant_type", "authorization_code")
	data.Set("code_verifier", f.codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.oauth2Config.Endpoint.TokenURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close token response body: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrExchangeFailed, resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", ErrExchangeFailed)
	}

	logger.Debugw("Exchanged authorization code at token endpoint",
		"has_id_token", tokenResp.IDToken != "",
		"expires_in", tokenResp.ExpiresIn)

	return &tokenResp, nil
}

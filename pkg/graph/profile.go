// Package graph provides a minimal Microsoft Graph client for profile lookup.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/entralite/entralite/pkg/logger"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Profile is the subset of the Graph user object the auth layer needs to
// reconstruct a session identity.
type Profile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// ProfileFetcher looks up the signed-in user's profile with a bearer token.
// It is an interface so the auth layer can be tested without Graph.
type ProfileFetcher interface {
	Me(ctx context.Context, accessToken string) (*Profile, error)
}

// Client is a ProfileFetcher backed by the Microsoft Graph REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Graph client against the default endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(DefaultBaseURL)
}

// NewClientWithBaseURL creates a Graph client against a custom endpoint.
// Used by tests to point at a local server.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Me fetches the profile of the user the access token belongs to.
func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close profile response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile request failed with status %d", resp.StatusCode)
	}

	// Limit response size to guard against a misbehaving endpoint.
	const maxResponseSize = 1024 * 1024
	var profile Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}

	return &profile, nil
}

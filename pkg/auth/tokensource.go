package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/entralite/entralite/pkg/auth/oauth"
)

// tokenSource produces access tokens for a signed-in interactive session.
// The two backings correspond to the two exchange paths: provider-managed
// refresh for library exchanges, and a locally stored record for direct
// exchanges.
type tokenSource interface {
	// Token returns a usable token record. forceRefresh discards any cached
	// access token and goes back to the provider; backings without a
	// refresh path ignore it.
	Token(ctx context.Context, forceRefresh bool) (*TokenRecord, error)
}

// refreshTokenSource wraps the provider library's self-refreshing source.
// Forced refresh rebuilds the source from the refresh token so the cached
// access token is discarded.
type refreshTokenSource struct {
	flow *oauth.Flow

	mu           sync.Mutex
	source       oauth2.TokenSource
	refreshToken string
	scopes       []string
}

func newRefreshTokenSource(ctx context.Context, flow *oauth.Flow, token *oauth2.Token, scopes []string) *refreshTokenSource {
	return &refreshTokenSource{
		flow:         flow,
		source:       flow.TokenSource(ctx, token),
		refreshToken: token.RefreshToken,
		scopes:       scopes,
	}
}

func (r *refreshTokenSource) Token(ctx context.Context, forceRefresh bool) (*TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if forceRefresh {
		if r.refreshToken == "" {
			return nil, fmt.Errorf("forced refresh failed: no refresh token held")
		}
		token, err := r.flow.RefreshTokenSource(ctx, r.refreshToken).Token()
		if err != nil {
			return nil, fmt.Errorf("forced refresh failed: %w", err)
		}
		r.adoptLocked(ctx, token)
		return recordFromToken(token, r.scopes), nil
	}

	token, err := r.source.Token()
	if err != nil {
		return nil, fmt.Errorf("silent token acquisition failed: %w", err)
	}
	if token.RefreshToken != "" {
		r.refreshToken = token.RefreshToken
	}
	return recordFromToken(token, r.scopes), nil
}

// adoptLocked replaces the cached source with one seeded from a freshly
// refreshed token. Caller holds r.mu.
func (r *refreshTokenSource) adoptLocked(ctx context.Context, token *oauth2.Token) {
	if token.RefreshToken != "" {
		r.refreshToken = token.RefreshToken
	}
	r.source = r.flow.TokenSource(ctx, token)
}

// recordFromToken converts a provider-library token into a TokenRecord,
// carrying over the identity token when the response included one.
func recordFromToken(token *oauth2.Token, scopes []string) *TokenRecord {
	record := &TokenRecord{
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
		Scopes:      append([]string(nil), scopes...),
		Mode:        ModeInteractive,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		record.IDToken = idToken
	}
	return record
}

// staticTokenSource serves a locally stored record from a direct exchange.
// There is no refresh path: an expired record is cleared and the session
// must be re-established.
type staticTokenSource struct {
	mu     sync.Mutex
	record *TokenRecord
}

func newStaticTokenSource(record *TokenRecord) *staticTokenSource {
	return &staticTokenSource{record: record}
}

func (s *staticTokenSource) Token(_ context.Context, _ bool) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		return nil, ErrNotSignedIn
	}
	if !time.Now().Before(s.record.Expiry) {
		s.record = nil
		return nil, fmt.Errorf("%w: cached token expired and no refresh path exists", ErrNotSignedIn)
	}

	record := *s.record
	return &record, nil
}

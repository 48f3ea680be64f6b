package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/entralite/entralite/pkg/graph"
)

func testServiceConfig() *Config {
	return &Config{
		ClientID: "client-123",
		TenantID: "tenant-456",
		Scopes:   []string{"User.Read", "openid"},
	}
}

// makeIDToken builds an unsigned three-segment token carrying the given
// payload claims.
func makeIDToken(t *testing.T, payload map[string]any) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	require.NoError(t, err)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

// roundTripFunc fakes the provider's token endpoint without any network.
type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func tokenEndpointClient(t *testing.T, handler func(form map[string]string) *http.Response) *http.Client {
	t.Helper()

	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		values, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		form := map[string]string{}
		for key := range values {
			form[key] = values.Get(key)
		}
		return handler(form), nil
	})}
}

// fakeSource is a scriptable tokenSource.
type fakeSource struct {
	mu    sync.Mutex
	calls []bool

	silentRecord *TokenRecord
	silentErr    error
	forcedRecord *TokenRecord
	forcedErr    error
}

func (f *fakeSource) Token(_ context.Context, forceRefresh bool) (*TokenRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, forceRefresh)
	f.mu.Unlock()
	if forceRefresh {
		return f.forcedRecord, f.forcedErr
	}
	return f.silentRecord, f.silentErr
}

// failingFetcher fails the test if the facade touches Graph.
type failingFetcher struct {
	t *testing.T
}

func (f *failingFetcher) Me(_ context.Context, _ string) (*graph.Profile, error) {
	f.t.Error("unexpected Graph call")
	return nil, errors.New("unexpected Graph call")
}

// erroringFetcher simulates Graph being unreachable.
type erroringFetcher struct{}

func (erroringFetcher) Me(_ context.Context, _ string) (*graph.Profile, error) {
	return nil, errors.New("graph unreachable")
}

// interactiveService returns an initialized interactive-mode service with a
// scripted token source already installed, simulating a signed-in session.
func interactiveService(t *testing.T, source tokenSource, opts ...Option) *Service {
	t.Helper()

	s := NewService(opts...)
	require.NoError(t, s.Initialize(testServiceConfig()))
	s.mu.Lock()
	s.state = stateInteractive
	s.source = source
	s.identity = &Identity{AccountID: "acct-1", Username: "user@example.com", DisplayName: "Example User"}
	s.mu.Unlock()
	return s
}

func TestServiceNotInitialized(t *testing.T) {
	t.Parallel()

	s := NewService()
	ctx := context.Background()

	_, err := s.SignIn(ctx, ChannelSystemBrowser)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.GetToken(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.Info()
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.RequestAdditionalPermissions(ctx, []string{"Mail.Read"})
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitializeValidation(t *testing.T) {
	t.Parallel()

	s := NewService()
	require.Error(t, s.Initialize(nil))
	require.Error(t, s.Initialize(&Config{TenantID: "t"}))
	require.Error(t, s.Initialize(&Config{ClientID: "c"}))
}

func TestInitializeAppliesDefaults(t *testing.T) {
	t.Parallel()

	s := NewService()
	require.NoError(t, s.Initialize(&Config{ClientID: "c", TenantID: "t"}))

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, DefaultScopes, info.Scopes)
	assert.Equal(t, ModeInteractive, info.Mode)
}

func TestInitializeIsIdempotentAndResetsSession(t *testing.T) {
	t.Parallel()

	s := interactiveService(t, &fakeSource{})
	require.NotNil(t, s.Identity())

	require.NoError(t, s.Initialize(testServiceConfig()))
	assert.Nil(t, s.Identity())

	_, err := s.GetToken(context.Background())
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestGetTokenSignedOut(t *testing.T) {
	t.Parallel()

	s := NewService()
	require.NoError(t, s.Initialize(testServiceConfig()))

	_, err := s.GetToken(context.Background())
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestGetTokenSilentSuccess(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		silentRecord: &TokenRecord{AccessToken: "silent-token", Expiry: time.Now().Add(time.Hour), Mode: ModeInteractive},
	}
	s := interactiveService(t, source)

	record, err := s.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "silent-token", record.AccessToken)
	assert.Equal(t, []bool{false}, source.calls)
}

func TestGetTokenEscalatesToForcedRefresh(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		silentErr:    errors.New("cache miss"),
		forcedRecord: &TokenRecord{AccessToken: "forced-token", Expiry: time.Now().Add(time.Hour), Mode: ModeInteractive},
	}
	s := interactiveService(t, source)

	record, err := s.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "forced-token", record.AccessToken)
	assert.Equal(t, []bool{false, true}, source.calls)

	// Identity survives a successful escalation.
	identity := s.Identity()
	require.NotNil(t, identity)
	assert.Equal(t, "user@example.com", identity.Username)
}

func TestGetTokenSessionExpiredClearsIdentity(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		silentErr: errors.New("cache miss"),
		forcedErr: errors.New("refresh token revoked"),
	}
	s := interactiveService(t, source)

	_, err := s.GetToken(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, []bool{false, true}, source.calls)

	info, err := s.Info()
	require.NoError(t, err)
	assert.False(t, info.IsAuthenticated)
	assert.Nil(t, s.Identity())
}

func TestGetTokenExpiredLocalRecord(t *testing.T) {
	t.Parallel()

	expired := &TokenRecord{AccessToken: "stale", Expiry: time.Now().Add(-time.Minute), Mode: ModeInteractive}
	s := interactiveService(t, newStaticTokenSource(expired))

	_, err := s.GetToken(context.Background())
	require.ErrorIs(t, err, ErrNotSignedIn)

	// No silent->forced escalation for local records, and the session is
	// gone.
	info, err := s.Info()
	require.NoError(t, err)
	assert.False(t, info.IsAuthenticated)
}

func TestInfoNeverTouchesNetwork(t *testing.T) {
	t.Parallel()

	s := interactiveService(t, &fakeSource{}, WithProfileFetcher(&failingFetcher{t: t}))

	info, err := s.Info()
	require.NoError(t, err)
	assert.True(t, info.IsAuthenticated)
	assert.Equal(t, "client-123", info.ClientID)
	assert.Equal(t, "tenant-456", info.TenantID)
	assert.Empty(t, info.Permissions)
}

func TestInfoWithPermissionsDecodesToken(t *testing.T) {
	t.Parallel()

	accessToken := makeIDToken(t, map[string]any{"scp": "User.Read Mail.Read"})
	source := &fakeSource{
		silentRecord: &TokenRecord{AccessToken: accessToken, Expiry: time.Now().Add(time.Hour), Mode: ModeInteractive},
	}
	s := interactiveService(t, source)

	info, err := s.InfoWithPermissions(context.Background())
	require.NoError(t, err)
	assert.True(t, info.IsAuthenticated)
	assert.Equal(t, []string{"User.Read", "Mail.Read"}, info.Permissions)
}

func TestInfoWithPermissionsDegradesOnFailure(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		silentErr: errors.New("down"),
		forcedErr: errors.New("down"),
	}
	s := interactiveService(t, source)

	info, err := s.InfoWithPermissions(context.Background())
	require.NoError(t, err)
	assert.False(t, info.IsAuthenticated)
	assert.Empty(t, info.Permissions)
}

func TestClientCredentialsMode(t *testing.T) {
	t.Parallel()

	calls := 0
	client := tokenEndpointClient(t, func(form map[string]string) *http.Response {
		calls++
		assert.Equal(t, "client_credentials", form["grant_type"])
		return jsonResponse(http.StatusOK, `{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`)
	})
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)

	s := NewService()
	cfg := testServiceConfig()
	cfg.ClientSecret = "secret"
	cfg.UseClientCredentials = true
	require.NoError(t, s.Initialize(cfg))

	// Channel preference is ignored.
	record, err := s.SignIn(ctx, ChannelEmbedded)
	require.NoError(t, err)
	assert.Equal(t, "app-token", record.AccessToken)
	assert.Equal(t, ModeClientCredentials, record.Mode)

	// No session identity is ever created.
	assert.Nil(t, s.Identity())

	// Always authenticated, regardless of network state.
	info, err := s.Info()
	require.NoError(t, err)
	assert.True(t, info.IsAuthenticated)
	assert.Equal(t, ModeClientCredentials, info.Mode)

	// Every GetToken re-acquires.
	_, err = s.GetToken(ctx)
	require.NoError(t, err)
	_, err = s.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestClientCredentialsInfoWithPermissionsStaysAuthenticated(t *testing.T) {
	t.Parallel()

	client := tokenEndpointClient(t, func(_ map[string]string) *http.Response {
		return jsonResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`)
	})
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)

	s := NewService()
	cfg := testServiceConfig()
	cfg.ClientSecret = "bad-secret"
	cfg.UseClientCredentials = true
	require.NoError(t, s.Initialize(cfg))

	info, err := s.InfoWithPermissions(ctx)
	require.NoError(t, err)
	assert.True(t, info.IsAuthenticated)
}

func TestClientCredentialsRequiresSecret(t *testing.T) {
	t.Parallel()

	s := NewService()
	cfg := testServiceConfig()
	cfg.UseClientCredentials = true
	require.Error(t, s.Initialize(cfg))
}

func TestSignOut(t *testing.T) {
	t.Parallel()

	s := interactiveService(t, &fakeSource{
		silentRecord: &TokenRecord{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)},
	})

	s.SignOut()
	assert.Nil(t, s.Identity())
	_, err := s.GetToken(context.Background())
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestClearCacheIsIdempotent(t *testing.T) {
	t.Parallel()

	s := interactiveService(t, &fakeSource{})
	ctx := context.Background()
	s.ClearCache(ctx)
	s.ClearCache(ctx)

	info, err := s.Info()
	require.NoError(t, err)
	assert.False(t, info.IsAuthenticated)
}

func TestMergeScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing []string
		extra    []string
		want     []string
	}{
		{
			name:     "appends new scopes in order",
			existing: []string{"User.Read", "openid"},
			extra:    []string{"Mail.Read", "Calendars.Read"},
			want:     []string{"User.Read", "openid", "Mail.Read", "Calendars.Read"},
		},
		{
			name:     "drops duplicates",
			existing: []string{"User.Read", "openid"},
			extra:    []string{"openid", "Mail.Read", "User.Read", "Mail.Read"},
			want:     []string{"User.Read", "openid", "Mail.Read"},
		},
		{
			name:     "empty extra keeps existing",
			existing: []string{"User.Read"},
			extra:    nil,
			want:     []string{"User.Read"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, mergeScopes(tt.existing, tt.extra))
		})
	}
}

func TestScopesCover(t *testing.T) {
	t.Parallel()

	assert.True(t, scopesCover([]string{"User.Read", "openid"}, []string{"User.Read"}))
	assert.True(t, scopesCover([]string{"User.Read"}, nil))
	assert.False(t, scopesCover([]string{"User.Read"}, []string{"Mail.Read"}))
}

func TestGetTokenWithPermissionsCoveredScopes(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		silentRecord: &TokenRecord{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)},
	}
	s := interactiveService(t, source)

	record, err := s.GetTokenWithPermissions(context.Background(), []string{"User.Read"})
	require.NoError(t, err)
	assert.Equal(t, "tok", record.AccessToken)
}

func TestRequestAdditionalPermissionsRejectedForClientCredentials(t *testing.T) {
	t.Parallel()

	s := NewService()
	cfg := testServiceConfig()
	cfg.ClientSecret = "secret"
	cfg.UseClientCredentials = true
	require.NoError(t, s.Initialize(cfg))

	_, err := s.RequestAdditionalPermissions(context.Background(), []string{"Mail.Read"})
	require.Error(t, err)
}

func TestIDTokenClaims(t *testing.T) {
	t.Parallel()

	s := interactiveService(t, &fakeSource{})
	s.mu.Lock()
	s.idToken = makeIDToken(t, map[string]any{"oid": "acct-1", "name": "Example User"})
	s.mu.Unlock()

	claimMap, err := s.IDTokenClaims()
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claimMap["oid"])
}

func TestIDTokenClaimsWithoutSession(t *testing.T) {
	t.Parallel()

	s := NewService()
	require.NoError(t, s.Initialize(testServiceConfig()))

	_, err := s.IDTokenClaims()
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestGetCurrentUserFallsBackToCachedIdentity(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		silentRecord: &TokenRecord{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)},
	}
	s := interactiveService(t, source, WithProfileFetcher(erroringFetcher{}))

	profile, err := s.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acct-1", profile.ID)
	assert.Equal(t, "user@example.com", profile.UserPrincipalName)
}

func TestTestCredentials(t *testing.T) {
	t.Parallel()

	t.Run("missing fields", func(t *testing.T) {
		t.Parallel()
		check := TestCredentials(context.Background(), &Config{})
		assert.False(t, check.Succeeded)
	})

	t.Run("public client is structurally validated", func(t *testing.T) {
		t.Parallel()
		check := TestCredentials(context.Background(), testServiceConfig())
		assert.True(t, check.Succeeded)
		assert.Contains(t, check.Detail, "interactive login required")
	})

	t.Run("client credentials acquire a real token", func(t *testing.T) {
		t.Parallel()
		client := tokenEndpointClient(t, func(_ map[string]string) *http.Response {
			return jsonResponse(http.StatusOK, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
		})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)

		cfg := testServiceConfig()
		cfg.ClientSecret = "secret"
		cfg.UseClientCredentials = true
		check := TestCredentials(ctx, cfg)
		assert.True(t, check.Succeeded)
	})

	t.Run("bad secret fails", func(t *testing.T) {
		t.Parallel()
		client := tokenEndpointClient(t, func(_ map[string]string) *http.Response {
			return jsonResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`)
		})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)

		cfg := testServiceConfig()
		cfg.ClientSecret = "wrong"
		cfg.UseClientCredentials = true
		check := TestCredentials(ctx, cfg)
		assert.False(t, check.Succeeded)
	})
}

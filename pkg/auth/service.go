package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/entralite/entralite/pkg/auth/claims"
	"github.com/entralite/entralite/pkg/auth/oauth"
	"github.com/entralite/entralite/pkg/graph"
	"github.com/entralite/entralite/pkg/logger"
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{"User.Read", "openid", "profile", "email"}

// SurfaceFactory creates a fresh embedded browser surface for one
// authentication attempt. Surfaces are never reused across attempts.
type SurfaceFactory func() (oauth.Surface, error)

type sessionState int

const (
	stateSignedOut sessionState = iota
	stateInteractive
	stateClientCredentials
)

// Service is the authentication facade. One instance owns the session state
// machine: signed-out, signed-in-interactive, or
// signed-in-client-credentials. All methods are safe for concurrent use;
// concurrent interactive sign-ins collapse into a single attempt.
type Service struct {
	mu          sync.Mutex
	config      *Config
	state       sessionState
	identity    *Identity
	source      tokenSource
	idToken     string
	ccAcquirer  *oauth.ClientCredentialsAcquirer
	lastChannel Channel

	signInGroup singleflight.Group

	profiles   graph.ProfileFetcher
	surfaces   SurfaceFactory
	launcher   oauth.BrowserLauncher
	httpClient *http.Client
}

// Option configures a Service.
type Option func(*Service)

// WithProfileFetcher sets the Graph collaborator used for identity
// reconstruction and GetCurrentUser. Defaults to the real Graph client.
func WithProfileFetcher(profiles graph.ProfileFetcher) Option {
	return func(s *Service) {
		s.profiles = profiles
	}
}

// WithSurfaceFactory enables the embedded channel by supplying the host
// application's browser surface.
func WithSurfaceFactory(factory SurfaceFactory) Option {
	return func(s *Service) {
		s.surfaces = factory
	}
}

// WithBrowserLauncher overrides how the system-browser channel opens URLs.
func WithBrowserLauncher(launcher oauth.BrowserLauncher) Option {
	return func(s *Service) {
		s.launcher = launcher
	}
}

// WithHTTPClient overrides the HTTP client used for direct token exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// NewService creates an unconfigured facade. Initialize must be called
// before any other method.
func NewService(opts ...Option) *Service {
	s := &Service{
		profiles: graph.NewClient(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize configures the facade and selects the acquisition mode.
// Idempotent: calling it again replaces the configuration and resets the
// session to signed-out.
func (s *Service) Initialize(config *Config) error {
	if config == nil {
		return errors.New("configuration cannot be nil")
	}
	if config.ClientID == "" {
		return errors.New("client ID is required")
	}
	if config.TenantID == "" {
		return errors.New("tenant ID is required")
	}

	cfg := *config
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), DefaultScopes...)
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:3000"
	}

	var acquirer *oauth.ClientCredentialsAcquirer
	if cfg.UseClientCredentials {
		var err error
		acquirer, err = oauth.NewClientCredentialsAcquirer(&oauth.ClientCredentialsConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TenantID:     cfg.TenantID,
		})
		if err != nil {
			return fmt.Errorf("invalid client credentials configuration: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = &cfg
	s.ccAcquirer = acquirer
	s.state = stateSignedOut
	s.identity = nil
	s.source = nil
	s.idToken = ""
	if cfg.UseClientCredentials {
		s.state = stateClientCredentials
	}

	logger.Infow("Authentication service initialized",
		"mode", s.modeLocked(),
		"tenant_id", cfg.TenantID,
		"scopes", cfg.Scopes)
	return nil
}

// Mode returns the configured acquisition mode.
func (s *Service) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modeLocked()
}

func (s *Service) modeLocked() Mode {
	if s.config != nil && s.config.UseClientCredentials {
		return ModeClientCredentials
	}
	return ModeInteractive
}

// Identity returns a copy of the session identity, or nil when no user is
// signed in.
func (s *Service) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

// SignIn establishes a session. In client-credentials mode the channel is
// ignored and a token is acquired directly. In interactive mode the chosen
// browser channel runs the authorization-code flow; concurrent calls are
// collapsed into one attempt, all callers receiving its outcome.
func (s *Service) SignIn(ctx context.Context, channel Channel) (*TokenRecord, error) {
	s.mu.Lock()
	if s.config == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	cc := s.config.UseClientCredentials
	s.mu.Unlock()

	if cc {
		return s.acquireClientCredentials(ctx)
	}

	result, err, _ := s.signInGroup.Do("interactive-sign-in", func() (any, error) {
		return s.signInInteractive(ctx, channel)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TokenRecord), nil
}

func (s *Service) signInInteractive(ctx context.Context, channel Channel) (*TokenRecord, error) {
	s.mu.Lock()
	flowConfig := &oauth.Config{
		ClientID:    s.config.ClientID,
		TenantID:    s.config.TenantID,
		Scopes:      append([]string(nil), s.config.Scopes...),
		RedirectURL: s.config.RedirectURL,
	}
	s.mu.Unlock()

	var (
		record   *TokenRecord
		source   tokenSource
		identity *Identity
		err      error
	)

	switch channel {
	case ChannelEmbedded:
		record, source, identity, err = s.runEmbedded(ctx, flowConfig)
	case ChannelSystemBrowser:
		record, source, identity, err = s.runSystemBrowser(ctx, flowConfig)
	default:
		return nil, fmt.Errorf("unknown sign-in channel %q", channel)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = stateInteractive
	s.source = source
	s.identity = identity
	s.idToken = record.IDToken
	s.lastChannel = channel
	s.mu.Unlock()

	logger.Infow("Interactive sign-in completed",
		"channel", channel,
		"username", identity.Username,
		"placeholder_identity", identity.Placeholder)
	return record, nil
}

// runEmbedded drives the embedded surface and exchanges the code through
// the provider library, so the session refreshes silently afterwards.
func (s *Service) runEmbedded(ctx context.Context, flowConfig *oauth.Config) (*TokenRecord, tokenSource, *Identity, error) {
	if s.surfaces == nil {
		return nil, nil, nil, errors.New("embedded channel requires a surface factory")
	}
	surface, err := s.surfaces()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create browser surface: %w", err)
	}

	embedded, err := oauth.NewEmbeddedFlow(flowConfig, surface)
	if err != nil {
		return nil, nil, nil, err
	}

	code, err := embedded.Run(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	token, err := embedded.Flow().Exchange(ctx, code)
	if err != nil {
		return nil, nil, nil, err
	}

	source := newRefreshTokenSource(ctx, embedded.Flow(), token, flowConfig.Scopes)
	record := recordFromToken(token, flowConfig.Scopes)
	identity := reconstructIdentity(ctx, record.IDToken, record.AccessToken, s.profiles)
	return record, source, identity, nil
}

// runSystemBrowser opens the OS browser with a local callback listener and
// exchanges the code directly at the token endpoint. The resulting record
// is cached locally and cannot be silently refreshed.
func (s *Service) runSystemBrowser(ctx context.Context, flowConfig *oauth.Config) (*TokenRecord, tokenSource, *Identity, error) {
	var opts []oauth.LocalServerOption
	if s.launcher != nil {
		opts = append(opts, oauth.WithBrowserLauncher(s.launcher))
	}

	server, err := oauth.NewLocalServer(flowConfig, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	code, err := server.Run(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	resp, err := server.Flow().ExchangeDirect(ctx, s.httpClient, code)
	if err != nil {
		return nil, nil, nil, err
	}

	record := &TokenRecord{
		AccessToken: resp.AccessToken,
		IDToken:     resp.IDToken,
		Expiry:      resp.Expiry(),
		Scopes:      append([]string(nil), flowConfig.Scopes...),
		Mode:        ModeInteractive,
	}
	identity := reconstructIdentity(ctx, record.IDToken, record.AccessToken, s.profiles)
	return record, newStaticTokenSource(record), identity, nil
}

func (s *Service) acquireClientCredentials(ctx context.Context) (*TokenRecord, error) {
	token, err := s.ccAcquirer.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	scopes := append([]string(nil), s.config.Scopes...)
	s.state = stateClientCredentials
	s.mu.Unlock()

	return &TokenRecord{
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
		Scopes:      scopes,
		Mode:        ModeClientCredentials,
	}, nil
}

// GetToken returns a usable access token for the current session.
//
// Client-credentials mode always re-acquires. Interactive mode attempts
// silent acquisition, escalates once to a forced refresh, and on a second
// failure clears the session identity and fails with ErrSessionExpired.
// Sessions backed by a local record fail with ErrNotSignedIn when the
// record expires.
func (s *Service) GetToken(ctx context.Context) (*TokenRecord, error) {
	s.mu.Lock()
	if s.config == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	state := s.state
	source := s.source
	s.mu.Unlock()

	switch state {
	case stateClientCredentials:
		return s.acquireClientCredentials(ctx)
	case stateSignedOut:
		return nil, ErrNotSignedIn
	}

	record, err := source.Token(ctx, false)
	if err == nil {
		return record, nil
	}
	if errors.Is(err, ErrNotSignedIn) {
		s.clearSession()
		return nil, err
	}

	logger.Warnf("Silent token acquisition failed, retrying with forced refresh: %v", err)
	record, err = source.Token(ctx, true)
	if err == nil {
		return record, nil
	}
	if errors.Is(err, ErrNotSignedIn) {
		s.clearSession()
		return nil, err
	}

	s.clearSession()
	return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
}

// SignOut drops the in-memory session and returns the facade to signed-out.
func (s *Service) SignOut() {
	s.clearSession()
	logger.Info("Signed out")
}

// ClearCache removes every cached token and account record and returns the
// facade to signed-out. Idempotent.
func (s *Service) ClearCache(_ context.Context) {
	s.clearSession()
	logger.Debug("Token cache cleared")
}

func (s *Service) clearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.source = nil
	s.idToken = ""
	if s.config != nil && s.config.UseClientCredentials {
		s.state = stateClientCredentials
		return
	}
	s.state = stateSignedOut
}

// ForceReauthenticate clears all cached state and runs a fresh interactive
// sign-in.
func (s *Service) ForceReauthenticate(ctx context.Context, channel Channel) (*TokenRecord, error) {
	s.ClearCache(ctx)
	return s.SignIn(ctx, channel)
}

// Info returns the cheap authentication summary. It never performs network
// or provider calls: interactive authentication is inferred from the
// presence of a session identity, and client-credentials mode is always
// considered authenticated.
func (s *Service) Info() (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil, ErrNotInitialized
	}

	return &Info{
		Mode:            s.modeLocked(),
		IsAuthenticated: s.config.UseClientCredentials || s.identity != nil,
		ClientID:        s.config.ClientID,
		TenantID:        s.config.TenantID,
		Scopes:          append([]string(nil), s.config.Scopes...),
	}, nil
}

// InfoWithPermissions returns the authentication summary enriched with the
// permissions decoded from a live token. When token acquisition fails, the
// interactive summary degrades to unauthenticated; client-credentials mode
// stays authenticated regardless.
func (s *Service) InfoWithPermissions(ctx context.Context) (*Info, error) {
	info, err := s.Info()
	if err != nil {
		return nil, err
	}

	record, err := s.GetToken(ctx)
	if err != nil {
		if info.Mode == ModeInteractive {
			info.IsAuthenticated = false
		}
		logger.Debugf("Token unavailable for permission introspection: %v", err)
		return info, nil
	}

	info.Permissions = claims.Permissions(record.AccessToken)
	return info, nil
}

// RequestAdditionalPermissions merges the new scopes into the configured
// set (order-preserving, de-duplicated) and re-runs interactive sign-in so
// the user can consent to the widened grant.
func (s *Service) RequestAdditionalPermissions(ctx context.Context, scopes []string) (*TokenRecord, error) {
	s.mu.Lock()
	if s.config == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if s.config.UseClientCredentials {
		s.mu.Unlock()
		return nil, errors.New("additional permissions are granted in the app registration for client-credentials mode")
	}
	s.config.Scopes = mergeScopes(s.config.Scopes, scopes)
	channel := s.defaultChannelLocked()
	s.mu.Unlock()

	return s.SignIn(ctx, channel)
}

// GetTokenWithPermissions returns the current token when the configured
// scopes already cover the request; otherwise it widens the scope set and
// re-runs interactive sign-in.
func (s *Service) GetTokenWithPermissions(ctx context.Context, scopes []string) (*TokenRecord, error) {
	s.mu.Lock()
	if s.config == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	covered := scopesCover(s.config.Scopes, scopes)
	s.mu.Unlock()

	if covered {
		return s.GetToken(ctx)
	}
	return s.RequestAdditionalPermissions(ctx, scopes)
}

// defaultChannelLocked picks the channel for implicit re-sign-ins: the one
// used last, otherwise whichever channel this service can actually drive.
func (s *Service) defaultChannelLocked() Channel {
	if s.lastChannel != "" {
		return s.lastChannel
	}
	if s.surfaces != nil {
		return ChannelEmbedded
	}
	return ChannelSystemBrowser
}

// GetCurrentUser fetches the signed-in user's Graph profile, falling back
// to the cached session identity when Graph is unreachable.
func (s *Service) GetCurrentUser(ctx context.Context) (*graph.Profile, error) {
	record, err := s.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	if s.profiles != nil {
		profile, err := s.profiles.Me(ctx, record.AccessToken)
		if err == nil {
			return profile, nil
		}
		logger.Warnf("Graph profile lookup failed, using cached identity: %v", err)
	}

	identity := s.Identity()
	if identity == nil {
		return nil, errors.New("no profile available for current session")
	}
	return &graph.Profile{
		ID:                identity.AccountID,
		DisplayName:       identity.DisplayName,
		UserPrincipalName: identity.Username,
	}, nil
}

// CredentialCheck is the outcome of a configuration validation.
type CredentialCheck struct {
	Succeeded bool
	Detail    string
}

// TestCredentials validates an Entra app registration. Client-credentials
// configurations perform a real token acquisition; public-client
// configurations are checked structurally, since proving them requires an
// interactive login.
func TestCredentials(ctx context.Context, config *Config) *CredentialCheck {
	if config == nil || config.ClientID == "" || config.TenantID == "" {
		return &CredentialCheck{Detail: "client ID and tenant ID are required"}
	}

	if !config.UseClientCredentials {
		return &CredentialCheck{
			Succeeded: true,
			Detail:    "configuration valid, interactive login required",
		}
	}

	acquirer, err := oauth.NewClientCredentialsAcquirer(&oauth.ClientCredentialsConfig{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TenantID:     config.TenantID,
	})
	if err != nil {
		return &CredentialCheck{Detail: err.Error()}
	}
	if _, err := acquirer.Acquire(ctx); err != nil {
		return &CredentialCheck{Detail: fmt.Sprintf("token acquisition failed: %v", err)}
	}
	return &CredentialCheck{Succeeded: true, Detail: "client credentials validated against the token endpoint"}
}

// IDTokenClaims decodes (without verifying) the identity token of the
// current session.
func (s *Service) IDTokenClaims() (jwt.MapClaims, error) {
	s.mu.Lock()
	idToken := s.idToken
	s.mu.Unlock()

	if idToken == "" {
		return nil, fmt.Errorf("%w: no identity token held", ErrNotSignedIn)
	}
	return claims.Decode(idToken)
}

// mergeScopes appends the extra scopes that are not already present,
// preserving order of first appearance.
func mergeScopes(existing, extra []string) []string {
	merged := append([]string(nil), existing...)
	seen := make(map[string]struct{}, len(existing))
	for _, scope := range existing {
		seen[scope] = struct{}{}
	}
	for _, scope := range extra {
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		merged = append(merged, scope)
	}
	return merged
}

func scopesCover(configured, requested []string) bool {
	have := make(map[string]struct{}, len(configured))
	for _, scope := range configured {
		have[scope] = struct{}{}
	}
	for _, scope := range requested {
		if _, ok := have[scope]; !ok {
			return false
		}
	}
	return true
}

package session

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/adamcubel/Cubel-Cloud/applications"
	"github.com/adamcubel/Cubel-Cloud/entitlement"
	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/oidcproxy"
)

// Phase tracks how far the manager has come through its startup
// sequence. Authentication state is deliberately independent of it: a
// ready manager may or may not hold an identity.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseConfiguring   Phase = "configuring"
	PhaseReady         Phase = "ready"
)

// Snapshot is the value published to subscribers on every session
// change.
type Snapshot struct {
	Phase          Phase     `json:"phase"`
	AuthAvailable  bool      `json:"authAvailable"`
	Authenticated  bool      `json:"authenticated"`
	AvatarsEnabled bool      `json:"avatarsEnabled"`
	Identity       *Identity `json:"identity,omitempty"`
}

// Exchanger swaps an authorization code for tokens. Satisfied by
// *oidcproxy.Proxy; faked in tests.
type Exchanger interface {
	Exchange(ctx context.Context, req oidcproxy.ExchangeRequest) (*oidcproxy.TokenResponse, error)
}

// Manager owns the session lifecycle: one-time configuration, the
// authorization-code round trip, and a last-value-cached publication of
// session snapshots to subscribers.
type Manager struct {
	cfg           config.Config
	exchanger     Exchanger
	httpClient    *http.Client
	tokenEndpoint string

	lock           sync.Mutex
	phase          Phase
	generation     uint64
	authAvailable  bool
	avatarsEnabled bool
	settings       *config.OIDCSettings
	registry       *applications.Registry
	verifier       *oidc.IDTokenVerifier
	oauth          *oauth2.Config
	identity       *Identity
	subscribers    map[uint64]chan Snapshot
	nextSubscriber uint64
}

type Option func(*Manager)

// WithTokenEndpoint pins the token URL every exchange goes through,
// regardless of what provider discovery later advertises.
func WithTokenEndpoint(endpoint string) Option {
	return func(m *Manager) {
		m.tokenEndpoint = endpoint
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = client
	}
}

func WithExchanger(exchanger Exchanger) Option {
	return func(m *Manager) {
		m.exchanger = exchanger
	}
}

func New(cfg config.Config, options ...Option) *Manager {
	m := &Manager{
		cfg:         cfg,
		httpClient:  http.DefaultClient,
		phase:       PhaseUninitialized,
		subscribers: make(map[uint64]chan Snapshot),
	}
	for _, option := range options {
		option(m)
	}
	if m.exchanger == nil {
		proxyOptions := []oidcproxy.Option{oidcproxy.WithHTTPClient(m.httpClient)}
		if m.tokenEndpoint != "" {
			proxyOptions = append(proxyOptions, oidcproxy.WithTokenEndpoint(m.tokenEndpoint))
		}
		m.exchanger = oidcproxy.New(cfg, proxyOptions...)
	}
	return m
}

// Initialize loads the portal configuration and prepares the OIDC
// client. It is safe to call from multiple goroutines; every call after
// the first is a no-op. Configuration problems never fail startup: a
// missing application registry or avatar key degrades to defaults, and
// a missing OIDC config leaves the manager usable but unauthenticated.
func (m *Manager) Initialize(ctx context.Context) error {
	m.lock.Lock()
	if m.phase != PhaseUninitialized {
		m.lock.Unlock()
		return nil
	}
	m.phase = PhaseConfiguring
	m.notifyLocked()
	m.lock.Unlock()

	var (
		wg          sync.WaitGroup
		settings    *config.OIDCSettings
		settingsErr error
		registry    *applications.Registry
		avatarKey   string
		avatarErr   error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		settings, settingsErr = m.cfg.GetOIDCSettings()
	}()
	go func() {
		defer wg.Done()
		registry = m.loadRegistry()
	}()
	go func() {
		defer wg.Done()
		avatarKey, avatarErr = m.cfg.GetGravatarAPIKey()
	}()
	wg.Wait()

	m.lock.Lock()
	defer m.lock.Unlock()

	m.registry = registry
	m.avatarsEnabled = avatarErr == nil && avatarKey != ""
	if avatarErr != nil {
		log.Debug().Err(avatarErr).Msg("avatar provider not configured, avatars disabled")
	}

	if settingsErr != nil {
		log.Warn().Err(settingsErr).Msg("identity provider config unavailable, running without authentication")
		m.authAvailable = false
		m.phase = PhaseReady
		m.notifyLocked()
		return nil
	}

	m.settings = settings
	m.configureOAuthLocked(ctx, settings)
	m.phase = PhaseReady
	m.notifyLocked()
	return nil
}

// configureOAuthLocked builds the oauth2 client for the configured
// issuer. The token URL is pointed at the exchange proxy before
// discovery runs and re-pinned afterwards, so the discovery document
// can never restore the provider's native token endpoint.
func (m *Manager) configureOAuthLocked(ctx context.Context, settings *config.OIDCSettings) {
	tokenEndpoint := m.tokenEndpoint
	if tokenEndpoint == "" {
		tokenEndpoint = oidcproxy.TokenEndpointForIssuer(settings.Issuer)
	}

	m.oauth = &oauth2.Config{
		ClientID:    settings.ClientID,
		RedirectURL: settings.RedirectURI,
		Scopes:      settings.Scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  settings.Issuer + "/protocol/openid-connect/auth",
			TokenURL: tokenEndpoint,
		},
	}

	providerCtx := oidc.ClientContext(ctx, m.httpClient)
	provider, err := oidc.NewProvider(providerCtx, settings.Issuer)
	if err != nil {
		log.Warn().Err(err).Str("issuer", settings.Issuer).
			Msg("provider discovery failed, running without authentication")
		m.oauth = nil
		m.authAvailable = false
		return
	}

	endpoint := provider.Endpoint()
	endpoint.TokenURL = tokenEndpoint
	m.oauth.Endpoint = endpoint
	m.verifier = provider.Verifier(&oidc.Config{ClientID: settings.ClientID})
	m.authAvailable = true
}

func (m *Manager) loadRegistry() *applications.Registry {
	path := filepath.Join(m.cfg.GetConfigFolder(), "applications.json")
	registryConfig, err := applications.LoadRegistryFile(path)
	if err != nil {
		log.Debug().Err(err).Msg("application registry not configured, using built-in defaults")
		return applications.DefaultRegistry()
	}
	return applications.NewRegistry(registryConfig.Applications)
}

// TokenEndpoint reports the token URL exchanges are routed through.
func (m *Manager) TokenEndpoint() string {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.oauth == nil {
		return ""
	}
	return m.oauth.Endpoint.TokenURL
}

// AuthAvailable reports whether a login round trip can succeed.
func (m *Manager) AuthAvailable() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.authAvailable
}

func (m *Manager) Phase() Phase {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.phase
}

// Registry returns the application registry resolved during
// initialization, or the built-in defaults before it.
func (m *Manager) Registry() *applications.Registry {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.registry == nil {
		return applications.DefaultRegistry()
	}
	return m.registry
}

// LoginAttempt carries the one-time values of a started login. State
// and nonce are echoed back by the provider; the verifier stays with
// the caller for the code exchange.
type LoginAttempt struct {
	URL      string
	State    string
	Nonce    string
	Verifier string
}

// BeginLogin generates fresh state, nonce and PKCE verifier values and
// builds the matching authorization URL.
func (m *Manager) BeginLogin() (*LoginAttempt, error) {
	attempt := &LoginAttempt{
		State:    uuid.NewString(),
		Nonce:    uuid.NewString(),
		Verifier: oauth2.GenerateVerifier(),
	}

	url, err := m.LoginURL(attempt.State, attempt.Nonce, attempt.Verifier)
	if err != nil {
		return nil, err
	}
	attempt.URL = url
	return attempt, nil
}

// LoginURL builds the authorization-code URL for the configured
// provider. The PKCE challenge is derived from verifier unless the
// portal config disables PKCE.
func (m *Manager) LoginURL(state, nonce, verifier string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.authAvailable || m.oauth == nil {
		return "", fmt.Errorf("login: %w", errors.ErrUpstreamAuthFailure)
	}

	authOptions := []oauth2.AuthCodeOption{oidc.Nonce(nonce)}
	if !m.settings.DisablePKCE && verifier != "" {
		authOptions = append(authOptions, oauth2.S256ChallengeOption(verifier))
	}
	return m.oauth.AuthCodeURL(state, authOptions...), nil
}

// HandleCallback completes a login: it exchanges the authorization code
// through the proxy, verifies the resulting ID token, derives the
// user's role and entitled applications, and publishes the new session.
// The manager initializes itself on demand, the callback route can be
// the first thing the process serves. A result arriving after Logout
// reset the session is dropped.
func (m *Manager) HandleCallback(ctx context.Context, code, expectedNonce, codeVerifier string) (*Identity, error) {
	if m.Phase() == PhaseUninitialized {
		if err := m.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	m.lock.Lock()
	if !m.authAvailable || m.verifier == nil {
		m.lock.Unlock()
		return nil, fmt.Errorf("callback: %w", errors.ErrUpstreamAuthFailure)
	}
	generation := m.generation
	settings := m.settings
	verifier := m.verifier
	registry := m.registry
	m.lock.Unlock()

	tokens, err := m.exchanger.Exchange(ctx, oidcproxy.ExchangeRequest{
		Code:         code,
		RedirectURI:  settings.RedirectURI,
		CodeVerifier: codeVerifier,
	})
	if err != nil {
		return nil, err
	}

	if tokens.IDToken == "" {
		return nil, fmt.Errorf("token response carried no id token: %w", errors.ErrUpstreamAuthFailure)
	}

	idToken, err := verifier.Verify(oidc.ClientContext(ctx, m.httpClient), tokens.IDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", errors.ErrUpstreamAuthFailure)
	}
	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return nil, fmt.Errorf("id token nonce mismatch: %w", errors.ErrUpstreamAuthFailure)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id token claims: %w", errors.ErrUpstreamAuthFailure)
	}

	roles, apps := accessTokenClaims(tokens.AccessToken)
	role := entitlement.DeriveRole(roles)
	if registry == nil {
		registry = applications.DefaultRegistry()
	}

	identity := &Identity{
		Subject:      idToken.Subject,
		Username:     claims.PreferredUsername,
		DisplayName:  claims.displayName(),
		Email:        claims.Email,
		Role:         role,
		EntitledApps: entitlement.ResolveApplications(role, apps, registry),
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.generation != generation {
		log.Debug().Str("subject", identity.Subject).Msg("dropping callback result, session was reset mid-exchange")
		return nil, fmt.Errorf("session reset during login: %w", errors.ErrUpstreamAuthFailure)
	}
	m.identity = identity
	m.notifyLocked()
	return identity, nil
}

// Logout clears the current identity and invalidates any exchange still
// in flight.
func (m *Manager) Logout() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.generation++
	m.identity = nil
	m.notifyLocked()
}

// Subscribe returns the current session snapshot and a channel carrying
// every subsequent one. The channel holds the latest unread snapshot
// only; slow consumers see the newest state, not the full history. The
// returned cancel function releases the subscription.
func (m *Manager) Subscribe() (Snapshot, <-chan Snapshot, func()) {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := m.nextSubscriber
	m.nextSubscriber++
	ch := make(chan Snapshot, 1)
	m.subscribers[id] = ch

	cancel := func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		if existing, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(existing)
		}
	}
	return m.snapshotLocked(), ch, cancel
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:          m.phase,
		AuthAvailable:  m.authAvailable,
		Authenticated:  m.identity != nil,
		AvatarsEnabled: m.avatarsEnabled,
		Identity:       m.identity,
	}
}

func (m *Manager) notifyLocked() {
	snapshot := m.snapshotLocked()
	for _, ch := range m.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

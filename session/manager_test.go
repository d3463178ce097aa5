package session_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/adamcubel/Cubel-Cloud/entitlement"
	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/oidcproxy"
	"github.com/adamcubel/Cubel-Cloud/session"
)

type testConfig struct {
	folder       string
	oidcSettings *config.OIDCSettings
	oidcErr      error
	gravatarKey  string
	gravatarErr  error
}

func (c *testConfig) GetPort() string           { return ":0" }
func (c *testConfig) GetAppName() string        { return "Cubel Cloud" }
func (c *testConfig) GetConfigFolder() string   { return c.folder }
func (c *testConfig) GetFrontendOrigin() string { return "http://localhost:3000" }
func (c *testConfig) GetEnv() string            { return "TEST" }

func (c *testConfig) GetAllowedOrigins() config.AllowedOrigins {
	return config.AllowedOrigins{"http://localhost:3000": struct{}{}}
}
func (c *testConfig) GetAllowedMethods() string { return "GET, POST" }
func (c *testConfig) GetAllowedHeaders() string { return "Content-Type, Authorization" }

func (c *testConfig) GetOIDCSettings() (*config.OIDCSettings, error) {
	return c.oidcSettings, c.oidcErr
}

func (c *testConfig) GetDatabaseSettings() (*config.DatabaseSettings, error) {
	return nil, errors.ErrConfigurationMissing
}

func (c *testConfig) GetGravatarAPIKey() (string, error) { return c.gravatarKey, c.gravatarErr }
func (c *testConfig) GetGravatarLoggingEnabled() bool    { return false }

var _ config.Config = (*testConfig)(nil)

// fakeIssuer is an in-process OIDC provider with a real signing key, so
// discovery and ID-token verification run the production code path.
type fakeIssuer struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	issuer string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{key: key}
	mux := http.NewServeMux()
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	f.issuer = f.server.URL + "/realms/portal"

	mux.HandleFunc("GET /realms/portal/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 f.issuer,
			"authorization_endpoint": f.issuer + "/protocol/openid-connect/auth",
			"token_endpoint":         f.issuer + "/protocol/openid-connect/token",
			"jwks_uri":               f.issuer + "/protocol/openid-connect/certs",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /realms/portal/protocol/openid-connect/certs", func(w http.ResponseWriter, r *http.Request) {
		pub := f.key.Public().(*rsa.PublicKey)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": "test-key",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	return f
}

func (f *fakeIssuer) settings() *config.OIDCSettings {
	return &config.OIDCSettings{
		Issuer:       f.issuer,
		ClientID:     "portal-client",
		ClientSecret: "portal-secret",
		RedirectURI:  "http://localhost:3000/callback",
	}
}

// signIDToken mints an ID token the manager's verifier accepts.
func (f *fakeIssuer) signIDToken(t *testing.T, nonce string, extra map[string]any) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":                f.issuer,
		"aud":                "portal-client",
		"sub":                "user-sub-1",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"iat":                time.Now().Unix(),
		"nonce":              nonce,
		"preferred_username": "jane",
		"name":               "Jane Doe",
		"email":              "jane@example.com",
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

// signAccessToken mints the unverified access token carrying role and
// apps claims.
func (f *fakeIssuer) signAccessToken(t *testing.T, roles []string, apps any) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":          f.issuer,
		"sub":          "user-sub-1",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"realm_access": map[string]any{"roles": roles},
	}
	if apps != nil {
		claims["apps"] = apps
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

type scriptedExchanger struct {
	mu       sync.Mutex
	response *oidcproxy.TokenResponse
	onCall   func()
}

func (s *scriptedExchanger) Exchange(_ context.Context, req oidcproxy.ExchangeRequest) (*oidcproxy.TokenResponse, error) {
	s.mu.Lock()
	onCall := s.onCall
	response := s.response
	s.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if req.Code == "" {
		return nil, fmt.Errorf("authorization code is required: %w", errors.ErrInvalidRequest)
	}
	return response, nil
}

func TestInitializeWithoutOIDCConfigDegrades(t *testing.T) {
	cfg := &testConfig{
		folder:  t.TempDir(),
		oidcErr: errors.ErrConfigurationMissing,
	}
	manager := session.New(cfg)

	require.NoError(t, manager.Initialize(context.Background()))
	require.Equal(t, session.PhaseReady, manager.Phase())
	require.False(t, manager.AuthAvailable())

	// Degraded registry falls back to the built-in application set
	require.Equal(t, 4, manager.Registry().Len())

	_, err := manager.LoginURL("state", "nonce", "verifier")
	require.ErrorIs(t, err, errors.ErrUpstreamAuthFailure)
}

func TestInitializeIsIdempotent(t *testing.T) {
	cfg := &testConfig{folder: t.TempDir(), oidcErr: errors.ErrConfigurationMissing}
	manager := session.New(cfg)

	require.NoError(t, manager.Initialize(context.Background()))
	snapshot := manager.Snapshot()

	require.NoError(t, manager.Initialize(context.Background()))
	require.Equal(t, snapshot, manager.Snapshot())
}

func TestTokenEndpointSubstitutionSurvivesDiscovery(t *testing.T) {
	issuer := newFakeIssuer(t)
	cfg := &testConfig{folder: t.TempDir(), oidcSettings: issuer.settings()}

	manager := session.New(cfg, session.WithTokenEndpoint("http://localhost:3001/api/oidc/token"))
	require.NoError(t, manager.Initialize(context.Background()))
	require.True(t, manager.AuthAvailable())

	// Discovery advertised the provider's native endpoint; the proxy
	// endpoint must still win.
	require.Equal(t, "http://localhost:3001/api/oidc/token", manager.TokenEndpoint())

	loginURL, err := manager.LoginURL("the-state", "the-nonce", "the-verifier")
	require.NoError(t, err)
	require.Contains(t, loginURL, "/protocol/openid-connect/auth")
	require.Contains(t, loginURL, "state=the-state")
	require.Contains(t, loginURL, "nonce=the-nonce")
	require.Contains(t, loginURL, "code_challenge=")
}

func TestBeginLoginGeneratesFreshValues(t *testing.T) {
	issuer := newFakeIssuer(t)
	cfg := &testConfig{folder: t.TempDir(), oidcSettings: issuer.settings()}

	manager := session.New(cfg)
	require.NoError(t, manager.Initialize(context.Background()))

	first, err := manager.BeginLogin()
	require.NoError(t, err)
	second, err := manager.BeginLogin()
	require.NoError(t, err)

	require.NotEqual(t, first.State, second.State)
	require.NotEqual(t, first.Nonce, second.Nonce)
	require.NotEqual(t, first.Verifier, second.Verifier)
	require.Contains(t, first.URL, "state="+first.State)
}

func TestHandleCallback(t *testing.T) {
	issuer := newFakeIssuer(t)
	cfg := &testConfig{folder: t.TempDir(), oidcSettings: issuer.settings(), gravatarKey: "key"}

	exchanger := &scriptedExchanger{response: &oidcproxy.TokenResponse{
		AccessToken: issuer.signAccessToken(t, []string{"user"}, []any{"app1", "app3"}),
		IDToken:     issuer.signIDToken(t, "the-nonce", nil),
		TokenType:   "Bearer",
	}}
	manager := session.New(cfg, session.WithExchanger(exchanger))

	// Deferred initialization: the callback is the first call
	identity, err := manager.HandleCallback(context.Background(), "the-code", "the-nonce", "the-verifier")
	require.NoError(t, err)
	require.Equal(t, "user-sub-1", identity.Subject)
	require.Equal(t, "Jane Doe", identity.DisplayName)
	require.Equal(t, entitlement.RoleUser, identity.Role)
	require.Len(t, identity.EntitledApps, 2)

	snapshot := manager.Snapshot()
	require.True(t, snapshot.Authenticated)
	require.True(t, snapshot.AvatarsEnabled)
}

func TestHandleCallbackNonceMismatch(t *testing.T) {
	issuer := newFakeIssuer(t)
	cfg := &testConfig{folder: t.TempDir(), oidcSettings: issuer.settings()}

	exchanger := &scriptedExchanger{response: &oidcproxy.TokenResponse{
		AccessToken: issuer.signAccessToken(t, nil, nil),
		IDToken:     issuer.signIDToken(t, "other-nonce", nil),
	}}
	manager := session.New(cfg, session.WithExchanger(exchanger))

	_, err := manager.HandleCallback(context.Background(), "the-code", "the-nonce", "")
	require.ErrorIs(t, err, errors.ErrUpstreamAuthFailure)
	require.False(t, manager.Snapshot().Authenticated)
}

func TestHandleCallbackDroppedAfterLogout(t *testing.T) {
	issuer := newFakeIssuer(t)
	cfg := &testConfig{folder: t.TempDir(), oidcSettings: issuer.settings()}

	exchanger := &scriptedExchanger{response: &oidcproxy.TokenResponse{
		AccessToken: issuer.signAccessToken(t, []string{"user"}, nil),
		IDToken:     issuer.signIDToken(t, "the-nonce", nil),
	}}
	manager := session.New(cfg, session.WithExchanger(exchanger))
	require.NoError(t, manager.Initialize(context.Background()))

	// The session resets while the exchange is in flight
	exchanger.onCall = func() { manager.Logout() }

	_, err := manager.HandleCallback(context.Background(), "the-code", "the-nonce", "")
	require.Error(t, err)
	require.False(t, manager.Snapshot().Authenticated)
}

func TestSubscribeKeepsLatestSnapshot(t *testing.T) {
	cfg := &testConfig{folder: t.TempDir(), oidcErr: errors.ErrConfigurationMissing}
	manager := session.New(cfg)
	require.NoError(t, manager.Initialize(context.Background()))

	snapshot, updates, cancel := manager.Subscribe()
	defer cancel()
	require.Equal(t, session.PhaseReady, snapshot.Phase)

	// Two unread notifications collapse into the newest one
	manager.Logout()
	manager.Logout()

	latest := <-updates
	require.Equal(t, session.PhaseReady, latest.Phase)
	require.False(t, latest.Authenticated)
	require.Empty(t, updates)
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	cfg := &testConfig{folder: t.TempDir(), oidcErr: errors.ErrConfigurationMissing}
	manager := session.New(cfg)

	_, updates, cancel := manager.Subscribe()
	cancel()

	_, open := <-updates
	require.False(t, open)
}

func TestGravatarURL(t *testing.T) {
	url := session.GravatarURL(" MyEmailAddress@example.com ", 80)
	require.Equal(t,
		"https://www.gravatar.com/avatar/0bc83cb571cd1c50ba6f3e8a78ef1346?s=80&d=identicon&r=pg",
		url)
}

func TestConcurrentInitialize(t *testing.T) {
	cfg := &testConfig{folder: t.TempDir(), oidcErr: errors.ErrConfigurationMissing}
	manager := session.New(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.Initialize(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, session.PhaseReady, manager.Phase())
}

package oidcproxy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/oidcproxy"
)

type stubOIDCConfig struct {
	settings *config.OIDCSettings
	err      error
}

func (s stubOIDCConfig) GetOIDCSettings() (*config.OIDCSettings, error) {
	return s.settings, s.err
}

func testSettings() *config.OIDCSettings {
	return &config.OIDCSettings{
		Issuer:       "https://auth.example.com/realms/portal",
		ClientID:     "portal-client",
		ClientSecret: "portal-secret",
		RedirectURI:  "http://localhost:3000/callback",
	}
}

func TestExchangeRequiresCode(t *testing.T) {
	proxy := oidcproxy.New(stubOIDCConfig{settings: testSettings()})

	_, err := proxy.Exchange(context.Background(), oidcproxy.ExchangeRequest{})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestExchangeRequiresClientSecret(t *testing.T) {
	settings := testSettings()
	settings.ClientSecret = ""
	proxy := oidcproxy.New(stubOIDCConfig{settings: settings})

	_, err := proxy.Exchange(context.Background(), oidcproxy.ExchangeRequest{Code: "abc"})
	require.ErrorIs(t, err, errors.ErrConfigurationMissing)
}

func TestExchangeSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostFormValue("grant_type"))
		require.Equal(t, "the-code", r.PostFormValue("code"))
		require.Equal(t, "portal-client", r.PostFormValue("client_id"))
		require.Equal(t, "portal-secret", r.PostFormValue("client_secret"))
		require.Equal(t, "the-verifier", r.PostFormValue("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "access-123",
			"id_token": "id-456",
			"refresh_token": "refresh-789",
			"token_type": "Bearer",
			"expires_in": 300,
			"scope": "openid profile email"
		}`))
	}))
	defer upstream.Close()

	proxy := oidcproxy.New(stubOIDCConfig{settings: testSettings()},
		oidcproxy.WithTokenEndpoint(upstream.URL))

	resp, err := proxy.Exchange(context.Background(), oidcproxy.ExchangeRequest{
		Code:         "the-code",
		CodeVerifier: "the-verifier",
	})
	require.NoError(t, err)
	require.Equal(t, "access-123", resp.AccessToken)
	require.Equal(t, "id-456", resp.IDToken)
	require.Equal(t, "refresh-789", resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, int64(300), resp.ExpiresIn)
	require.Equal(t, "openid profile email", resp.Scope)
}

func TestExchangeUsesConfiguredRedirectURIWhenOmitted(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "http://localhost:3000/callback", r.PostFormValue("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "access-123", "token_type": "Bearer"}`))
	}))
	defer upstream.Close()

	proxy := oidcproxy.New(stubOIDCConfig{settings: testSettings()},
		oidcproxy.WithTokenEndpoint(upstream.URL))

	_, err := proxy.Exchange(context.Background(), oidcproxy.ExchangeRequest{Code: "the-code"})
	require.NoError(t, err)
}

func TestExchangeUpstreamRejection(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "Code not valid"}`))
	}))
	defer upstream.Close()

	proxy := oidcproxy.New(stubOIDCConfig{settings: testSettings()},
		oidcproxy.WithTokenEndpoint(upstream.URL))

	_, err := proxy.Exchange(context.Background(), oidcproxy.ExchangeRequest{Code: "expired"})

	var upstreamErr *oidcproxy.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusBadRequest, upstreamErr.Status)
	require.Equal(t, "invalid_grant", upstreamErr.Code)
	require.Equal(t, "Code not valid", upstreamErr.Description)
	require.ErrorIs(t, err, errors.ErrUpstreamAuthFailure)
}

func TestExchangeUpstreamErrorDefaults(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	proxy := oidcproxy.New(stubOIDCConfig{settings: testSettings()},
		oidcproxy.WithTokenEndpoint(upstream.URL))

	_, err := proxy.Exchange(context.Background(), oidcproxy.ExchangeRequest{Code: "whatever"})

	var upstreamErr *oidcproxy.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusBadGateway, upstreamErr.Status)
	require.Equal(t, "token_exchange_failed", upstreamErr.Code)
}

// Package oidcproxy performs the authorization-code to token exchange
// against the identity provider on behalf of the browser, so the
// confidential client secret never leaves the server.
package oidcproxy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// ExchangeRequest carries the parameters the frontend sends to redeem an
// authorization code.
type ExchangeRequest struct {
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// TokenResponse is the upstream token endpoint response, forwarded
// verbatim to the caller.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// UpstreamError reports a token exchange the identity provider rejected.
// Status, code and description are propagated to the caller unchanged.
type UpstreamError struct {
	Status      int
	Code        string
	Description string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream token exchange failed (%d): %s: %s", e.Status, e.Code, e.Description)
}

func (e *UpstreamError) Unwrap() error {
	return errors.ErrUpstreamAuthFailure
}

// Proxy exchanges authorization codes for tokens. It holds no per-call
// state; every invocation is independent.
type Proxy struct {
	config        config.OIDCConfig
	tokenEndpoint string
	httpClient    *http.Client
}

type Option func(*Proxy)

// WithTokenEndpoint overrides the token endpoint derived from the issuer.
func WithTokenEndpoint(endpoint string) Option {
	return func(p *Proxy) {
		p.tokenEndpoint = endpoint
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *Proxy) {
		p.httpClient = client
	}
}

func New(cfg config.OIDCConfig, options ...Option) *Proxy {
	p := &Proxy{config: cfg}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// TokenEndpointForIssuer returns the provider's native token endpoint.
// Keycloak realms expose it under protocol/openid-connect.
func TokenEndpointForIssuer(issuer string) string {
	return issuer + "/protocol/openid-connect/token"
}

// Exchange redeems an authorization code for tokens using the
// confidential client secret.
func (p *Proxy) Exchange(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("authorization code is required: %w", errors.ErrInvalidRequest)
	}

	settings, err := p.config.GetOIDCSettings()
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	if settings.ClientSecret == "" {
		return nil, fmt.Errorf("token exchange missing client secret: %w", errors.ErrConfigurationMissing)
	}

	endpoint := p.tokenEndpoint
	if endpoint == "" {
		endpoint = TokenEndpointForIssuer(settings.Issuer)
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = settings.RedirectURI
	}

	oauthCfg := oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  endpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	log.Debug().
		Str("code", codePrefix(req.Code)).
		Str("endpoint", endpoint).
		Msg("exchanging authorization code")

	var exchangeOpts []oauth2.AuthCodeOption
	if req.CodeVerifier != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(req.CodeVerifier))
	}

	token, err := oauthCfg.Exchange(ctx, req.Code, exchangeOpts...)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			upstream := &UpstreamError{
				Status:      retrieveErr.Response.StatusCode,
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
			}
			if upstream.Code == "" {
				upstream.Code = "token_exchange_failed"
			}
			if upstream.Description == "" {
				upstream.Description = "Failed to exchange authorization code for tokens"
			}
			log.Error().Int("status", upstream.Status).Str("error", upstream.Code).Msg("token exchange rejected upstream")
			return nil, upstream
		}
		return nil, fmt.Errorf("token exchange transport failure: %w", err)
	}

	resp := &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if resp.TokenType == "" {
		resp.TokenType = "Bearer"
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if expiresIn, ok := token.Extra("expires_in").(float64); ok {
		resp.ExpiresIn = int64(expiresIn)
	}

	log.Info().Str("code", codePrefix(req.Code)).Msg("token exchange successful")
	return resp, nil
}

// codePrefix keeps authorization codes out of the logs.
func codePrefix(code string) string {
	if len(code) <= 20 {
		return code
	}
	return code[:20] + "..."
}

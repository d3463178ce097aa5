// Package keycloak is an admin API client for the identity provider. It
// authenticates with the confidential client's credentials and performs
// the user lookup, creation and group assignment needed to provision
// approved registrations.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// adminTokenExpiryMargin refreshes the cached admin token this long
// before its stated expiry.
const adminTokenExpiryMargin = 60 * time.Second

var issuerPattern = regexp.MustCompile(`^(https?://[^/]+)/realms/([^/]+)`)

// Client talks to the identity provider's admin API. The admin access
// token is process-wide cached shared state; fetching it twice is safe.
type Client struct {
	config        config.OIDCConfig
	httpClient    *http.Client
	tokenEndpoint string           // override for tests
	nowTime       func() time.Time // injectable for testing

	mu               sync.Mutex
	adminToken       string
	adminTokenExpiry time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTokenEndpoint overrides the client-credentials token endpoint.
func WithTokenEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.tokenEndpoint = endpoint
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func New(cfg config.OIDCConfig, options ...Option) *Client {
	c := &Client{
		config:     cfg,
		httpClient: http.DefaultClient,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// ParseIssuer splits a Keycloak issuer URL into the server base URL and
// the realm name.
func ParseIssuer(issuer string) (baseURL, realm string, err error) {
	match := issuerPattern.FindStringSubmatch(issuer)
	if match == nil {
		return "", "", fmt.Errorf("issuer %q is not a realm URL: %w", issuer, errors.ErrInvalidConfiguration)
	}
	return match[1], match[2], nil
}

func (c *Client) realmInfo() (*config.OIDCSettings, string, string, error) {
	settings, err := c.config.GetOIDCSettings()
	if err != nil {
		return nil, "", "", fmt.Errorf("keycloak admin client: %w", err)
	}
	if settings.ClientSecret == "" {
		return nil, "", "", fmt.Errorf("keycloak admin client missing client secret: %w", errors.ErrConfigurationMissing)
	}
	baseURL, realm, err := ParseIssuer(settings.Issuer)
	if err != nil {
		return nil, "", "", err
	}
	return settings, baseURL, realm, nil
}

// adminAccessToken returns a cached admin token, fetching a fresh one via
// the client-credentials grant when the cache is empty or near expiry.
func (c *Client) adminAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.adminToken != "" && c.nowTime().Before(c.adminTokenExpiry) {
		return c.adminToken, nil
	}

	settings, baseURL, realm, err := c.realmInfo()
	if err != nil {
		return "", err
	}

	tokenEndpoint := c.tokenEndpoint
	if tokenEndpoint == "" {
		tokenEndpoint = fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", baseURL, realm)
	}

	creds := clientcredentials.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		TokenURL:     tokenEndpoint,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	log.Debug().Str("realm", realm).Msg("requesting admin access token")
	token, err := creds.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", fmt.Errorf("admin token grant rejected (%s): %w", retrieveErr.ErrorCode, errors.ErrUpstreamAuthFailure)
		}
		return "", fmt.Errorf("admin token grant: %w", err)
	}

	c.adminToken = token.AccessToken
	c.adminTokenExpiry = token.Expiry.Add(-adminTokenExpiryMargin)
	return c.adminToken, nil
}

// doAdminRequest performs an authenticated admin API call and returns the
// response. The caller owns the body.
func (c *Client) doAdminRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	token, err := c.adminAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build admin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin request %s %s: %w", method, url, err)
	}
	return resp, nil
}

// apiErrorMessage extracts the provider's error message from a failed
// admin response body.
func apiErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return resp.Status
	}
	var payload struct {
		ErrorMessage string `json:"errorMessage"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.ErrorMessage != "" {
			return payload.ErrorMessage
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return string(data)
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// OIDCSettings mirrors config/oidc.json. The client secret stays
// server-side; PublicView strips it before anything reaches a browser.
type OIDCSettings struct {
	Issuer                            string            `json:"issuer"`
	ClientID                          string            `json:"clientId"`
	ClientSecret                      string            `json:"clientSecret,omitempty"`
	RedirectURI                       string            `json:"redirectUri"`
	ResponseType                      string            `json:"responseType,omitempty"`
	Scope                             string            `json:"scope,omitempty"`
	RequireHTTPS                      bool              `json:"requireHttps,omitempty"`
	ShowDebugInformation              bool              `json:"showDebugInformation,omitempty"`
	StrictDiscoveryDocumentValidation bool              `json:"strictDiscoveryDocumentValidation,omitempty"`
	SkipIssuerCheck                   bool              `json:"skipIssuerCheck,omitempty"`
	DisablePKCE                       bool              `json:"disablePKCE,omitempty"`
	ClearHashAfterLogin               bool              `json:"clearHashAfterLogin,omitempty"`
	PostLogoutRedirectURI             string            `json:"postLogoutRedirectUri,omitempty"`
	CustomQueryParams                 map[string]string `json:"customQueryParams,omitempty"`
}

// Scopes splits the space-separated scope string, defaulting to the
// standard OIDC profile scopes when unset.
func (s *OIDCSettings) Scopes() []string {
	if s.Scope == "" {
		return []string{"openid", "profile", "email"}
	}
	return strings.Fields(s.Scope)
}

// PublicView returns the settings safe to hand to the frontend.
func (s *OIDCSettings) PublicView() *OIDCSettings {
	public := *s
	public.ClientSecret = ""
	return &public
}

// OIDCFile loads OIDC settings from disk once and caches them for the
// process lifetime.
type OIDCFile struct {
	folder string

	once     sync.Once
	settings *OIDCSettings
	err      error
}

var _ OIDCConfig = (*OIDCFile)(nil)

func NewOIDCFile(folder string) *OIDCFile {
	return &OIDCFile{folder: folder}
}

func (f *OIDCFile) GetOIDCSettings() (*OIDCSettings, error) {
	f.once.Do(func() {
		f.settings, f.err = loadOIDCSettings(filepath.Join(f.folder, "oidc.json"))
	})
	return f.settings, f.err
}

func loadOIDCSettings(path string) (*OIDCSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("oidc settings %s: %w", path, errors.ErrConfigurationMissing)
		}
		return nil, fmt.Errorf("read oidc settings %s: %w", path, err)
	}

	var settings OIDCSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse oidc settings %s: %w", path, errors.ErrInvalidConfiguration)
	}
	if settings.Issuer == "" || settings.ClientID == "" {
		return nil, fmt.Errorf("oidc settings missing issuer or clientId: %w", errors.ErrInvalidConfiguration)
	}
	return &settings, nil
}

package server

import (
	"net/http"
	"path/filepath"

	"github.com/adamcubel/Cubel-Cloud/applications"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// OIDCConfigHandler serves the browser-facing OIDC settings. The client
// secret never leaves the server.
func (s *Server) OIDCConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.config.GetOIDCSettings()
		if err != nil {
			if errors.Is(err, errors.ErrConfigurationMissing) {
				writeJSONError(w, http.StatusNotFound, "not_configured", "OIDC configuration not found")
				return
			}
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings.PublicView())
	}
}

func (s *Server) ApplicationsConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(s.config.GetConfigFolder(), "applications.json")
		registryConfig, err := applications.LoadRegistryFile(path)
		if err != nil {
			if errors.Is(err, errors.ErrConfigurationMissing) {
				writeJSONError(w, http.StatusNotFound, "not_configured", "Applications configuration not found")
				return
			}
			writeJSONError(w, http.StatusInternalServerError, "invalid_configuration", "Applications configuration is invalid")
			return
		}
		writeJSON(w, http.StatusOK, registryConfig)
	}
}

func (s *Server) GravatarConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := s.config.GetGravatarAPIKey()
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "not_configured", "Gravatar configuration not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"apiKey":        apiKey,
			"enableLogging": s.config.GetGravatarLoggingEnabled(),
		})
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/oidcproxy"
)

// TokenExchangeHandler proxies the authorization-code exchange so the
// client secret stays server-side. Accepts JSON and form-encoded
// bodies; upstream failures pass through with their original status.
// Errors use the OAuth token-endpoint shape (error/error_description),
// not the portal shape, so standard OIDC clients can consume them.
func (s *Server) TokenExchangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exchangeReq, err := decodeExchangeRequest(r)
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
			return
		}

		tokens, err := s.exchange.Exchange(r.Context(), exchangeReq)
		if err != nil {
			writeExchangeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	}
}

func decodeExchangeRequest(r *http.Request) (oidcproxy.ExchangeRequest, error) {
	var req oidcproxy.ExchangeRequest

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Code = r.PostFormValue("code")
		req.RedirectURI = r.PostFormValue("redirect_uri")
		req.CodeVerifier = r.PostFormValue("code_verifier")
		return req, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

func writeOAuthError(w http.ResponseWriter, statusCode int, errorCode, description string) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func writeExchangeError(w http.ResponseWriter, err error) {
	var upstream *oidcproxy.UpstreamError
	switch {
	case errors.As(err, &upstream):
		writeOAuthError(w, upstream.Status, upstream.Code, upstream.Description)
	case errors.Is(err, errors.ErrInvalidRequest):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Authorization code is required")
	case errors.Is(err, errors.ErrConfigurationMissing):
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "OIDC client secret is not configured")
	default:
		log.Error().Err(err).Msg("token exchange failed")
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

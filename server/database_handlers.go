package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// DatabaseHealthHandler reports the relational store's reachability
// along with its clock and version.
func (s *Server) DatabaseHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "database_unavailable", "Database is not configured")
			return
		}

		currentTime, version, err := s.db.HealthInfo(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "database_unavailable", "Database is not reachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "healthy",
			"currentTime": currentTime,
			"version":     version,
		})
	}
}

// DatabaseQueryHandler runs an ad-hoc diagnostics query. Admin-only by
// route middleware.
func (s *Server) DatabaseQueryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "database_unavailable", "Database is not configured")
			return
		}

		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Query) == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "A query is required")
			return
		}

		auth := AuthFromContext(r.Context())
		log.Info().Str("subject", auth.Subject).Msg("diagnostics query executed")

		rows, err := s.db.RunQuery(r.Context(), body.Query)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"rows":     rows,
			"rowCount": len(rows),
		})
	}
}

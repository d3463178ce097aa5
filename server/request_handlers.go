package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/internal/utils"
	"github.com/adamcubel/Cubel-Cloud/keycloak"
	"github.com/adamcubel/Cubel-Cloud/requests"
)

type processBody struct {
	ProcessedBy string `json:"processedBy"`
	Notes       string `json:"notes,omitempty"`
}

func decodeProcessBody(w http.ResponseWriter, r *http.Request) (processBody, bool) {
	var body processBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
		return body, false
	}
	if strings.TrimSpace(body.ProcessedBy) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "processedBy is required")
		return body, false
	}
	return body, true
}

func (s *Server) ListAccessRequestsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.accessRepo.List(r.Context())
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": list})
	}
}

func (s *Server) CreateAccessRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID          string `json:"userId"`
			UserEmail       string `json:"userEmail"`
			UserName        string `json:"userName"`
			ApplicationID   string `json:"applicationId"`
			ApplicationName string `json:"applicationName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
			return
		}
		if body.UserID == "" || body.UserEmail == "" || body.UserName == "" ||
			body.ApplicationID == "" || body.ApplicationName == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request",
				"userId, userEmail, userName, applicationId and applicationName are required")
			return
		}

		req := &requests.AccessRequest{
			UserID:          body.UserID,
			UserEmail:       body.UserEmail,
			UserName:        body.UserName,
			ApplicationID:   body.ApplicationID,
			ApplicationName: body.ApplicationName,
		}
		if err := s.accessRepo.Create(r.Context(), req); err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"request": req})
	}
}

func (s *Server) ApproveAccessRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeProcessBody(w, r)
		if !ok {
			return
		}

		req, err := s.accessRepo.Approve(r.Context(), r.PathValue("id"), body.ProcessedBy)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		log.Info().Str("id", req.ID).Str("processedBy", utils.Value(req.ProcessedBy)).Msg("access request approved")
		writeJSON(w, http.StatusOK, map[string]any{"request": req})
	}
}

func (s *Server) RejectAccessRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeProcessBody(w, r)
		if !ok {
			return
		}

		req, err := s.accessRepo.Reject(r.Context(), r.PathValue("id"), body.ProcessedBy, body.Notes)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"request": req})
	}
}

func (s *Server) ListRegistrationRequestsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.registrationRepo.List(r.Context())
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": list})
	}
}

func (s *Server) CreateRegistrationRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email     string `json:"email"`
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
			Reason    string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
			return
		}
		if body.Email == "" || body.FirstName == "" || body.LastName == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "email, firstName and lastName are required")
			return
		}

		req := &requests.RegistrationRequest{
			Email:     body.Email,
			FirstName: body.FirstName,
			LastName:  body.LastName,
			Reason:    body.Reason,
		}
		if err := s.registrationRepo.Create(r.Context(), req); err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"request": req})
	}
}

// ApproveRegistrationRequestHandler transitions the request first and
// then provisions the user in the identity provider. A provisioning
// failure does not roll the approval back: the response reports the
// partial failure and an operator retries provisioning out of band.
func (s *Server) ApproveRegistrationRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeProcessBody(w, r)
		if !ok {
			return
		}

		req, err := s.registrationRepo.Approve(r.Context(), r.PathValue("id"), body.ProcessedBy)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		log.Info().Str("id", req.ID).Str("processedBy", utils.Value(req.ProcessedBy)).Msg("registration request approved")

		provisioning := s.provisionApprovedUser(r, req)
		writeJSON(w, http.StatusOK, map[string]any{
			"request":      req,
			"provisioning": provisioning,
		})
	}
}

func (s *Server) provisionApprovedUser(r *http.Request, req *requests.RegistrationRequest) map[string]any {
	if s.provisioner == nil {
		return map[string]any{
			"status":  "skipped",
			"message": "Identity provider is not configured",
		}
	}

	result, err := s.provisioner.ProvisionUser(r.Context(), keycloak.UserData{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("user provisioning failed after approval")
		message := "User provisioning failed"
		if errors.Is(err, errors.ErrUserAlreadyExists) {
			message = "User already exists in the identity provider"
		}
		return map[string]any{
			"status":  "failed",
			"message": message,
		}
	}

	return map[string]any{
		"status":   string(result.Status),
		"userId":   result.UserID,
		"username": result.Username,
	}
}

func (s *Server) RejectRegistrationRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeProcessBody(w, r)
		if !ok {
			return
		}

		req, err := s.registrationRepo.Reject(r.Context(), r.PathValue("id"), body.ProcessedBy, body.Notes)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"request": req})
	}
}

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/keycloak"
	"github.com/adamcubel/Cubel-Cloud/oidcproxy"
	"github.com/adamcubel/Cubel-Cloud/requests"
)

// Exchanger swaps an authorization code for tokens (the token exchange
// proxy). Faked in tests.
type Exchanger interface {
	Exchange(ctx context.Context, req oidcproxy.ExchangeRequest) (*oidcproxy.TokenResponse, error)
}

// Provisioner creates portal users in the identity provider when a
// registration request is approved. Satisfied by *keycloak.Client.
type Provisioner interface {
	ProvisionUser(ctx context.Context, data keycloak.UserData) (*keycloak.ProvisionResult, error)
}

// Database is the slice of the workflow store the diagnostics endpoints
// need. A nil Database means the relational store is not configured.
type Database interface {
	Ping(ctx context.Context) error
	HealthInfo(ctx context.Context) (currentTime, version string, err error)
	RunQuery(ctx context.Context, query string) ([]map[string]any, error)
}

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	exchange Exchanger

	accessRepo       requests.AccessRepo
	registrationRepo requests.RegistrationRepo
	provisioner      Provisioner
	db               Database
	verifier         TokenVerifier
}

type Option func(*Server)

// WithExchanger overrides the token exchange proxy (tests).
func WithExchanger(exchanger Exchanger) Option {
	return func(s *Server) {
		s.exchange = exchanger
	}
}

// WithTokenVerifier overrides bearer-token verification (tests).
func WithTokenVerifier(verifier TokenVerifier) Option {
	return func(s *Server) {
		s.verifier = verifier
	}
}

func WithDatabase(db Database) Option {
	return func(s *Server) {
		s.db = db
	}
}

func New(cfg config.Config, accessRepo requests.AccessRepo, registrationRepo requests.RegistrationRepo, provisioner Provisioner, options ...Option) *Server {
	s := &Server{
		mux:              http.NewServeMux(),
		config:           cfg,
		env:              cfg.GetEnv(),
		accessRepo:       accessRepo,
		registrationRepo: registrationRepo,
		provisioner:      provisioner,
	}
	for _, option := range options {
		option(s)
	}
	if s.exchange == nil {
		s.exchange = oidcproxy.New(cfg)
	}
	if s.verifier == nil {
		s.verifier = NewOIDCTokenVerifier(cfg)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		log.Debug().Str("route", route).Msg("registered")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeJSONError writes the portal error shape: {"error": code,
// "message": human-readable}.
func writeJSONError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// writeTaxonomyError maps a domain error onto the HTTP surface.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, errors.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "Request not found or already processed")
	case errors.Is(err, errors.ErrDuplicatePending):
		writeJSONError(w, http.StatusConflict, "duplicate_request", "A pending request already exists")
	case errors.Is(err, errors.ErrPoolUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "database_unavailable", "Database is not reachable")
	case errors.Is(err, errors.ErrConfigurationMissing):
		writeJSONError(w, http.StatusNotFound, "not_configured", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

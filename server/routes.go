package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// OIDC surface
	s.RegisterRouteHandler("GET "+RouteOIDCConfig, ChainMiddleware(s.OIDCConfigHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOIDCToken, ChainMiddleware(s.TokenExchangeHandler(), s.APIMiddleware()...))

	// Portal configuration
	s.RegisterRouteHandler("GET "+RouteApplicationsConfig, ChainMiddleware(s.ApplicationsConfigHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteGravatarConfig, ChainMiddleware(s.GravatarConfigHandler(), s.APIMiddleware()...))

	// Database diagnostics
	s.RegisterRouteHandler("GET "+RouteDatabaseHealth, ChainMiddleware(s.DatabaseHealthHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteDatabaseQuery, ChainMiddleware(s.DatabaseQueryHandler(), s.AdminAPIMiddleware()...))

	// Access request workflow
	s.RegisterRouteHandler("GET "+RouteAccessRequests, ChainMiddleware(s.ListAccessRequestsHandler(), s.AdminAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAccessRequests, ChainMiddleware(s.CreateAccessRequestHandler(), s.AuthenticatedAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAccessRequestApprove, ChainMiddleware(s.ApproveAccessRequestHandler(), s.AdminAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAccessRequestReject, ChainMiddleware(s.RejectAccessRequestHandler(), s.AdminAPIMiddleware()...))

	// Registration request workflow (create is unauthenticated: the
	// requester has no account yet)
	s.RegisterRouteHandler("GET "+RouteRegistrationRequests, ChainMiddleware(s.ListRegistrationRequestsHandler(), s.AdminAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRegistrationRequests, ChainMiddleware(s.CreateRegistrationRequestHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRegistrationApprove, ChainMiddleware(s.ApproveRegistrationRequestHandler(), s.AdminAPIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRegistrationReject, ChainMiddleware(s.RejectRegistrationRequestHandler(), s.AdminAPIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())

	// Preflight for every API route; CorsMiddleware answers OPTIONS
	// before the handler runs
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(func(http.ResponseWriter, *http.Request) {}, s.APIMiddleware()...))
}

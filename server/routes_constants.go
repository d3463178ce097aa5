package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHealth = "/health"

	// OIDC Routes
	RouteOIDCConfig = "/api/oidc/config"
	RouteOIDCToken  = "/api/oidc/token"

	// Portal configuration Routes
	RouteApplicationsConfig = "/api/applications/config"
	RouteGravatarConfig     = "/api/gravatar/config"

	// Database Routes
	RouteDatabaseHealth = "/api/database/health"
	RouteDatabaseQuery  = "/api/database/query"

	// Workflow Routes
	RouteAccessRequests       = "/api/access-requests"
	RouteAccessRequestApprove = "/api/access-requests/{id}/approve"
	RouteAccessRequestReject  = "/api/access-requests/{id}/reject"
	RouteRegistrationRequests = "/api/registration-requests"
	RouteRegistrationApprove  = "/api/registration-requests/{id}/approve"
	RouteRegistrationReject   = "/api/registration-requests/{id}/reject"

	// Observability
	RouteMetrics = "/metrics"
)

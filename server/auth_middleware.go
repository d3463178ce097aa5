package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/adamcubel/Cubel-Cloud/entitlement"
	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyAuth stores the verified caller identity
	ContextKeyAuth ContextKey = "auth"
)

// AuthContext is the verified caller identity handlers see.
type AuthContext struct {
	Subject  string
	Username string
	Email    string
	Role     entitlement.Role
}

// TokenVerifier validates a bearer token and derives the caller's role.
// The production implementation verifies against the identity
// provider's keys; tests substitute a fake.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*AuthContext, error)
}

// OIDCTokenVerifier verifies access tokens against the configured
// issuer's signing keys. Discovery runs once, on first use, so a portal
// without OIDC config can still start and serve its public routes.
type OIDCTokenVerifier struct {
	cfg config.OIDCConfig

	lock     sync.Mutex
	verifier *oidc.IDTokenVerifier
}

var _ TokenVerifier = (*OIDCTokenVerifier)(nil)

func NewOIDCTokenVerifier(cfg config.OIDCConfig) *OIDCTokenVerifier {
	return &OIDCTokenVerifier{cfg: cfg}
}

func (v *OIDCTokenVerifier) tokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}

	settings, err := v.cfg.GetOIDCSettings()
	if err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, settings.Issuer)
	if err != nil {
		return nil, fmt.Errorf("provider discovery: %w", err)
	}

	// Access tokens carry the realm audience, not the portal client id.
	v.verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return v.verifier, nil
}

func (v *OIDCTokenVerifier) VerifyToken(ctx context.Context, rawToken string) (*AuthContext, error) {
	verifier, err := v.tokenVerifier(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUpstreamAuthFailure, err)
	}

	token, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUpstreamAuthFailure, err)
	}

	var claims struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		RealmAccess       struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %v", errors.ErrUpstreamAuthFailure, err)
	}

	return &AuthContext{
		Subject:  token.Subject,
		Username: claims.PreferredUsername,
		Email:    claims.Email,
		Role:     entitlement.DeriveRole(claims.RealmAccess.Roles),
	}, nil
}

// RequireAuth validates the Authorization bearer token and injects the
// caller identity into the request context.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
			return
		}

		auth, err := s.verifier.VerifyToken(r.Context(), parts[1])
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyAuth, auth)
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin rejects callers without the admin role. Must run after
// RequireAuth.
func (s *Server) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := AuthFromContext(r.Context())
		if auth == nil || auth.Role != entitlement.RoleAdmin {
			writeJSONError(w, http.StatusForbidden, "forbidden", "Administrator role required")
			return
		}
		next(w, r)
	}
}

// AuthFromContext returns the verified caller identity, or nil outside
// an authenticated route.
func AuthFromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(ContextKeyAuth).(*AuthContext)
	return auth
}

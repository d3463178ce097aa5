package entitlement

import (
	"strings"

	"github.com/adamcubel/Cubel-Cloud/applications"
	"github.com/adamcubel/Cubel-Cloud/internal/utils"
)

// Role is the portal authorization level derived from token claims.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

const (
	adminRoleMarker = "realm-admin"
	userRoleMarker  = "user"

	// UnvalidatedAppID is a reserved application id. Its presence in the
	// apps claim means the account has not been validated yet: the user
	// sees no applications and is steered to the request-access flow.
	UnvalidatedAppID = "unvalidated"
)

// DeriveRole maps realm roles to a portal role. Admin wins over user;
// anything unrecognised is a guest.
func DeriveRole(realmRoles []string) Role {
	role := RoleGuest
	for _, r := range realmRoles {
		switch r {
		case adminRoleMarker:
			return RoleAdmin
		case userRoleMarker:
			role = RoleUser
		}
	}
	return role
}

// ParseAppsClaim normalises the apps claim. Identity providers deliver it
// either as a native list or as a single comma-delimited string.
func ParseAppsClaim(claim any) []string {
	switch v := claim.(type) {
	case nil:
		return nil
	case []string:
		return cleanAppIDs(v)
	case []any:
		return cleanAppIDs(utils.ToStringSlice(v))
	case string:
		return cleanAppIDs(strings.Split(v, ","))
	default:
		return nil
	}
}

func cleanAppIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}

// IsUnvalidated reports whether the apps claim carries the reserved
// unvalidated marker.
func IsUnvalidated(appIDs []string) bool {
	for _, id := range appIDs {
		if id == UnvalidatedAppID {
			return true
		}
	}
	return false
}

// roleFallback is the static role to application-set mapping used when
// the apps claim yields no usable entries. A nil slice means the whole
// registry.
var roleFallback = map[Role][]string{
	RoleAdmin: nil,
	RoleUser:  {"app1", "app3", "app4"},
	RoleGuest: {"app1"},
}

// ResolveApplications computes the visible application set for a user.
// Precedence: unvalidated marker (empty set), then the apps claim in
// claim order with unknown ids silently dropped, then the static role
// fallback.
func ResolveApplications(role Role, appIDs []string, registry *applications.Registry) []applications.Application {
	if registry == nil {
		registry = applications.DefaultRegistry()
	}

	if IsUnvalidated(appIDs) {
		return []applications.Application{}
	}

	// A non-empty claim is authoritative even when every id is unknown:
	// an unknown id is not invalid, just not renderable.
	if len(appIDs) > 0 {
		resolved := make([]applications.Application, 0, len(appIDs))
		for _, id := range appIDs {
			if app, ok := registry.Get(id); ok {
				resolved = append(resolved, app)
			}
		}
		return resolved
	}

	fallbackIDs, ok := roleFallback[role]
	if !ok {
		return []applications.Application{}
	}
	if fallbackIDs == nil {
		return registry.All()
	}
	resolved := make([]applications.Application, 0, len(fallbackIDs))
	for _, id := range fallbackIDs {
		if app, ok := registry.Get(id); ok {
			resolved = append(resolved, app)
		}
	}
	return resolved
}

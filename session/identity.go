package session

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adamcubel/Cubel-Cloud/applications"
	"github.com/adamcubel/Cubel-Cloud/entitlement"
)

// Identity is the portal-facing view of an authenticated user, derived
// from the verified ID token plus the role and application claims the
// identity provider embeds in the access token.
type Identity struct {
	Subject      string                     `json:"subject"`
	Username     string                     `json:"username"`
	DisplayName  string                     `json:"displayName"`
	Email        string                     `json:"email"`
	Role         entitlement.Role           `json:"role"`
	EntitledApps []applications.Application `json:"entitledApps"`
}

type idClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Email             string `json:"email"`
}

func (c idClaims) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	if full := strings.TrimSpace(c.GivenName + " " + c.FamilyName); full != "" {
		return full
	}
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Email
}

// accessTokenClaims pulls the realm roles and the entitled-application
// claim out of an access token without verifying its signature; the ID
// token backing the same session has already been verified, and the
// access token is only consumed here, never trusted server-side.
func accessTokenClaims(raw string) (roles []string, apps []string) {
	if raw == "" {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, nil
	}

	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		if rawRoles, ok := realmAccess["roles"].([]any); ok {
			for _, r := range rawRoles {
				if s, ok := r.(string); ok {
					roles = append(roles, s)
				}
			}
		}
	}

	apps = entitlement.ParseAppsClaim(claims["apps"])
	return roles, apps
}

// GravatarURL returns the avatar URL for an email address. Addresses are
// trimmed and lowercased before hashing, per the Gravatar contract.
func GravatarURL(email string, size int) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=%d&d=identicon&r=pg", hex.EncodeToString(sum[:]), size)
}

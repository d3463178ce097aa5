package keycloak

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ProvisionStatus reports whether provisioning found or created the
// provider account.
type ProvisionStatus string

const (
	ProvisionCreated  ProvisionStatus = "created"
	ProvisionExisting ProvisionStatus = "existing"
)

// ProvisionResult is the outcome of a provisioning call.
type ProvisionResult struct {
	UserID   string          `json:"userId"`
	Status   ProvisionStatus `json:"status"`
	Username string          `json:"username"`
}

// ProvisionUser ensures a provider account exists for the given user:
// find-or-create by email. For newly created users the required-actions
// email is triggered; a failure to send it is logged as a warning but
// does not fail provisioning, since account creation is the only
// mandatory post-condition.
func (c *Client) ProvisionUser(ctx context.Context, data UserData) (*ProvisionResult, error) {
	log.Info().Str("email", data.Email).Msg("provisioning user")

	existing, err := c.GetUserByEmail(ctx, data.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info().Str("user_id", existing.ID).Msg("user already exists")
		return &ProvisionResult{
			UserID:   existing.ID,
			Status:   ProvisionExisting,
			Username: existing.Username,
		}, nil
	}

	userID, err := c.CreateUser(ctx, data)
	if err != nil {
		return nil, err
	}

	if err := c.SendRequiredActionsEmail(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("user created but required-actions email failed")
	}

	return &ProvisionResult{
		UserID:   userID,
		Status:   ProvisionCreated,
		Username: data.Email,
	}, nil
}

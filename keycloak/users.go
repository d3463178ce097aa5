package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// requiredActions the user must complete before their first login.
var requiredActions = []string{
	"VERIFY_EMAIL",
	"TERMS_AND_CONDITIONS",
	"UPDATE_PASSWORD",
	"webauthn-register",
}

// defaultGroups are the application groups every provisioned user joins.
var defaultGroups = []string{
	"/apps/nextcloud",
	"/apps/ai",
	"/apps/rocketchat",
	"/apps/jitsi",
}

// User is the provider's user representation, reduced to the fields the
// portal reads and writes.
type User struct {
	ID              string   `json:"id,omitempty"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	FirstName       string   `json:"firstName,omitempty"`
	LastName        string   `json:"lastName,omitempty"`
	Enabled         bool     `json:"enabled"`
	EmailVerified   bool     `json:"emailVerified"`
	RequiredActions []string `json:"requiredActions,omitempty"`
	Groups          []string `json:"groups,omitempty"`
}

// UserData is the input for user creation and provisioning.
type UserData struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// GetUserByEmail searches for a user by exact email match. Returns nil
// when no user exists; transport and API failures return an error.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	_, baseURL, realm, err := c.realmInfo()
	if err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s/admin/realms/%s/users?email=%s&exact=true",
		baseURL, realm, url.QueryEscape(email))

	resp, err := c.doAdminRequest(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search user by email: %s", apiErrorMessage(resp))
	}

	var found []User
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return nil, fmt.Errorf("decode user search response: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// CreateUser creates a user with username=email, email verification
// disabled (handled through a required action) and the default
// application group memberships. Returns the new user's id.
func (c *Client) CreateUser(ctx context.Context, data UserData) (string, error) {
	_, baseURL, realm, err := c.realmInfo()
	if err != nil {
		return "", err
	}

	representation := User{
		Username:        data.Email,
		Email:           data.Email,
		FirstName:       data.FirstName,
		LastName:        data.LastName,
		Enabled:         true,
		EmailVerified:   false,
		RequiredActions: requiredActions,
		Groups:          defaultGroups,
	}

	body, err := json.Marshal(representation)
	if err != nil {
		return "", fmt.Errorf("marshal user representation: %w", err)
	}

	createURL := fmt.Sprintf("%s/admin/realms/%s/users", baseURL, realm)
	log.Info().Str("email", data.Email).Msg("creating user")

	resp, err := c.doAdminRequest(ctx, http.MethodPost, createURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", fmt.Errorf("user %s: %w", data.Email, errors.ErrUserAlreadyExists)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create user: %s", apiErrorMessage(resp))
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("user created but id not returned in Location header")
	}
	userID := location[strings.LastIndex(location, "/")+1:]

	log.Info().Str("user_id", userID).Msg("user created")
	return userID, nil
}

// SendRequiredActionsEmail triggers the provider email that walks the
// user through their required actions, password set included.
func (c *Client) SendRequiredActionsEmail(ctx context.Context, userID string) error {
	_, baseURL, realm, err := c.realmInfo()
	if err != nil {
		return err
	}

	body, err := json.Marshal(requiredActions)
	if err != nil {
		return fmt.Errorf("marshal required actions: %w", err)
	}

	actionsURL := fmt.Sprintf("%s/admin/realms/%s/users/%s/execute-actions-email", baseURL, realm, userID)

	resp, err := c.doAdminRequest(ctx, http.MethodPut, actionsURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send required-actions email: %s", apiErrorMessage(resp))
	}

	log.Info().Str("user_id", userID).Msg("required-actions email sent")
	return nil
}

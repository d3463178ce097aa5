package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

// Group is the provider's group representation.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

func (c *Client) fetchTopLevelGroups(ctx context.Context) ([]Group, error) {
	_, baseURL, realm, err := c.realmInfo()
	if err != nil {
		return nil, err
	}

	groupsURL := fmt.Sprintf("%s/admin/realms/%s/groups", baseURL, realm)
	resp, err := c.doAdminRequest(ctx, http.MethodGet, groupsURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch groups: %s", apiErrorMessage(resp))
	}

	var groups []Group
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return nil, fmt.Errorf("decode groups response: %w", err)
	}
	return groups, nil
}

// FetchSubgroups returns the direct children of a group.
func (c *Client) FetchSubgroups(ctx context.Context, groupID string) ([]Group, error) {
	_, baseURL, realm, err := c.realmInfo()
	if err != nil {
		return nil, err
	}

	childrenURL := fmt.Sprintf("%s/admin/realms/%s/groups/%s/children", baseURL, realm, groupID)
	resp, err := c.doAdminRequest(ctx, http.MethodGet, childrenURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch subgroups of %s: %s", groupID, apiErrorMessage(resp))
	}

	var groups []Group
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return nil, fmt.Errorf("decode subgroups response: %w", err)
	}
	return groups, nil
}

// FindGroupByPath resolves a hierarchical group path like /apps/nextcloud
// to a group id, walking the tree one level at a time and matching on
// name per segment. A missing segment yields ErrGroupNotFound, distinct
// from transport errors.
func (c *Client) FindGroupByPath(ctx context.Context, groupPath string) (string, error) {
	segments := splitGroupPath(groupPath)
	if len(segments) == 0 {
		return "", fmt.Errorf("invalid group path %q: %w", groupPath, errors.ErrInvalidRequest)
	}

	level, err := c.fetchTopLevelGroups(ctx)
	if err != nil {
		return "", err
	}

	var current *Group
	for i, segment := range segments {
		if i > 0 {
			level, err = c.FetchSubgroups(ctx, current.ID)
			if err != nil {
				return "", err
			}
		}

		current = nil
		for j := range level {
			if level[j].Name == segment {
				current = &level[j]
				break
			}
		}
		if current == nil {
			log.Warn().Str("path", groupPath).Str("segment", segment).Msg("group path segment not found")
			return "", fmt.Errorf("group %s: %w", groupPath, errors.ErrGroupNotFound)
		}
	}
	return current.ID, nil
}

// AddUserToGroup assigns a user to the group at the given path.
func (c *Client) AddUserToGroup(ctx context.Context, userID, groupPath string) error {
	groupID, err := c.FindGroupByPath(ctx, groupPath)
	if err != nil {
		return err
	}

	_, baseURL, realm, err := c.realmInfo()
	if err != nil {
		return err
	}

	memberURL := fmt.Sprintf("%s/admin/realms/%s/users/%s/groups/%s", baseURL, realm, userID, groupID)
	resp, err := c.doAdminRequest(ctx, http.MethodPut, memberURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("add user %s to group %s: %s", userID, groupPath, apiErrorMessage(resp))
	}

	log.Info().Str("user_id", userID).Str("group", groupPath).Msg("user added to group")
	return nil
}

func splitGroupPath(groupPath string) []string {
	parts := strings.Split(groupPath, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

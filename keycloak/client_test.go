package keycloak_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/keycloak"
)

type stubOIDCConfig struct {
	settings *config.OIDCSettings
	err      error
}

func (s stubOIDCConfig) GetOIDCSettings() (*config.OIDCSettings, error) {
	return s.settings, s.err
}

// fakeProvider is an in-process Keycloak admin API.
type fakeProvider struct {
	mux        *http.ServeMux
	server     *httptest.Server
	tokenCalls atomic.Int64

	users        []keycloak.User
	createStatus int
	emailStatus  int
	groups       []keycloak.Group
	children     map[string][]keycloak.Group
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	f := &fakeProvider{
		mux:          http.NewServeMux(),
		createStatus: http.StatusCreated,
		emailStatus:  http.StatusNoContent,
		children:     map[string][]keycloak.Group{},
	}

	f.mux.HandleFunc("POST /realms/portal/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "admin-token", "token_type": "Bearer", "expires_in": 300}`))
	})
	f.mux.HandleFunc("GET /admin/realms/portal/users", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		email := r.URL.Query().Get("email")
		matched := []keycloak.User{}
		for _, u := range f.users {
			if u.Email == email {
				matched = append(matched, u)
			}
		}
		_ = json.NewEncoder(w).Encode(matched)
	})
	f.mux.HandleFunc("POST /admin/realms/portal/users", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		if f.createStatus != http.StatusCreated {
			w.WriteHeader(f.createStatus)
			_, _ = w.Write([]byte(`{"errorMessage": "User exists with same username"}`))
			return
		}
		var representation keycloak.User
		require.NoError(t, json.NewDecoder(r.Body).Decode(&representation))
		require.Equal(t, representation.Email, representation.Username)
		require.False(t, representation.EmailVerified)
		require.True(t, representation.Enabled)
		require.Contains(t, representation.RequiredActions, "VERIFY_EMAIL")
		require.Contains(t, representation.RequiredActions, "webauthn-register")
		require.Contains(t, representation.Groups, "/apps/nextcloud")

		w.Header().Set("Location", f.server.URL+"/admin/realms/portal/users/new-user-id")
		w.WriteHeader(http.StatusCreated)
	})
	f.mux.HandleFunc("PUT /admin/realms/portal/users/{id}/execute-actions-email", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		w.WriteHeader(f.emailStatus)
	})
	f.mux.HandleFunc("GET /admin/realms/portal/groups", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_ = json.NewEncoder(w).Encode(f.groups)
	})
	f.mux.HandleFunc("GET /admin/realms/portal/groups/{id}/children", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_ = json.NewEncoder(w).Encode(f.children[r.PathValue("id")])
	})
	f.mux.HandleFunc("PUT /admin/realms/portal/users/{id}/groups/{gid}", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		w.WriteHeader(http.StatusNoContent)
	})

	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)
	return f
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	require.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
}

func (f *fakeProvider) clientConfig() stubOIDCConfig {
	return stubOIDCConfig{settings: &config.OIDCSettings{
		Issuer:       f.server.URL + "/realms/portal",
		ClientID:     "portal-client",
		ClientSecret: "portal-secret",
	}}
}

func TestParseIssuer(t *testing.T) {
	baseURL, realm, err := keycloak.ParseIssuer("https://auth.example.com/realms/portal")
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com", baseURL)
	require.Equal(t, "portal", realm)

	_, _, err = keycloak.ParseIssuer("https://auth.example.com/not-a-realm")
	require.ErrorIs(t, err, errors.ErrInvalidConfiguration)
}

func TestAdminTokenIsCached(t *testing.T) {
	provider := newFakeProvider(t)
	client := keycloak.New(provider.clientConfig())

	_, err := client.GetUserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	_, err = client.GetUserByEmail(context.Background(), "b@example.com")
	require.NoError(t, err)

	require.Equal(t, int64(1), provider.tokenCalls.Load())
}

func TestAdminTokenRefreshedNearExpiry(t *testing.T) {
	provider := newFakeProvider(t)

	now := time.Now()
	client := keycloak.New(provider.clientConfig(), keycloak.WithNowTime(func() time.Time { return now }))

	_, err := client.GetUserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)

	// Past the expiry margin of the 300s token lifetime
	now = now.Add(301 * time.Second)
	_, err = client.GetUserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)

	require.Equal(t, int64(2), provider.tokenCalls.Load())
}

func TestGetUserByEmailReturnsNilWhenAbsent(t *testing.T) {
	provider := newFakeProvider(t)
	client := keycloak.New(provider.clientConfig())

	user, err := client.GetUserByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestCreateUserConflict(t *testing.T) {
	provider := newFakeProvider(t)
	provider.createStatus = http.StatusConflict
	client := keycloak.New(provider.clientConfig())

	_, err := client.CreateUser(context.Background(), keycloak.UserData{Email: "taken@example.com"})
	require.ErrorIs(t, err, errors.ErrUserAlreadyExists)
}

func TestClientRequiresSecret(t *testing.T) {
	cfg := stubOIDCConfig{settings: &config.OIDCSettings{
		Issuer:   "https://auth.example.com/realms/portal",
		ClientID: "portal-client",
	}}
	client := keycloak.New(cfg)

	_, err := client.GetUserByEmail(context.Background(), "a@example.com")
	require.ErrorIs(t, err, errors.ErrConfigurationMissing)
}

func TestProvisionUserExisting(t *testing.T) {
	provider := newFakeProvider(t)
	provider.users = []keycloak.User{{ID: "existing-id", Username: "jane@example.com", Email: "jane@example.com"}}
	client := keycloak.New(provider.clientConfig())

	result, err := client.ProvisionUser(context.Background(), keycloak.UserData{Email: "jane@example.com"})
	require.NoError(t, err)
	require.Equal(t, keycloak.ProvisionExisting, result.Status)
	require.Equal(t, "existing-id", result.UserID)
	require.Equal(t, "jane@example.com", result.Username)
}

func TestProvisionUserCreates(t *testing.T) {
	provider := newFakeProvider(t)
	client := keycloak.New(provider.clientConfig())

	result, err := client.ProvisionUser(context.Background(), keycloak.UserData{
		Email:     "new@example.com",
		FirstName: "New",
		LastName:  "Person",
	})
	require.NoError(t, err)
	require.Equal(t, keycloak.ProvisionCreated, result.Status)
	require.Equal(t, "new-user-id", result.UserID)
}

func TestProvisionUserSurvivesEmailFailure(t *testing.T) {
	provider := newFakeProvider(t)
	provider.emailStatus = http.StatusInternalServerError
	client := keycloak.New(provider.clientConfig())

	result, err := client.ProvisionUser(context.Background(), keycloak.UserData{Email: "new@example.com"})
	require.NoError(t, err)
	require.Equal(t, keycloak.ProvisionCreated, result.Status)
}

func TestFindGroupByPath(t *testing.T) {
	provider := newFakeProvider(t)
	provider.groups = []keycloak.Group{{ID: "apps-id", Name: "apps", Path: "/apps"}}
	provider.children["apps-id"] = []keycloak.Group{
		{ID: "nextcloud-id", Name: "nextcloud", Path: "/apps/nextcloud"},
		{ID: "jitsi-id", Name: "jitsi", Path: "/apps/jitsi"},
	}
	client := keycloak.New(provider.clientConfig())

	groupID, err := client.FindGroupByPath(context.Background(), "/apps/nextcloud")
	require.NoError(t, err)
	require.Equal(t, "nextcloud-id", groupID)
}

func TestFindGroupByPathMissingSegment(t *testing.T) {
	provider := newFakeProvider(t)
	provider.groups = []keycloak.Group{{ID: "apps-id", Name: "apps", Path: "/apps"}}
	client := keycloak.New(provider.clientConfig())

	_, err := client.FindGroupByPath(context.Background(), "/apps/missing")
	require.ErrorIs(t, err, errors.ErrGroupNotFound)

	_, err = client.FindGroupByPath(context.Background(), "")
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestAddUserToGroup(t *testing.T) {
	provider := newFakeProvider(t)
	provider.groups = []keycloak.Group{{ID: "apps-id", Name: "apps", Path: "/apps"}}
	provider.children["apps-id"] = []keycloak.Group{{ID: "ai-id", Name: "ai", Path: "/apps/ai"}}
	client := keycloak.New(provider.clientConfig())

	err := client.AddUserToGroup(context.Background(), "user-1", "/apps/ai")
	require.NoError(t, err)
}

package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/authgate/app"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/models"
)

const (
	adminToken = "api_token_admin_12345"
	userToken  = "api_token_user_67890"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Dependencies) {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			RequestTimeout:     5 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Auth: config.AuthConfig{
			SigningKey:    "routes-test-signing-key-0123456789",
			Issuer:        "authgate-test",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			AdminOverride: true,
			BcryptCost:    bcrypt.MinCost,
			Users: []config.UserEntry{
				{Identity: "admin", Secret: "admin123", Role: models.RoleAdmin, Email: "admin@example.com"},
				{Identity: "operator", Secret: "operator123", Role: models.RoleOperator},
				{Identity: "user1", Secret: "user123", Role: models.RoleUser},
			},
			StaticTokens: []config.StaticToken{
				{Token: adminToken, Identity: "admin", Role: models.RoleAdmin},
				{Token: userToken, Identity: "user1", Role: models.RoleUser},
			},
		},
		Audit: config.AuditConfig{BufferSize: 64, WorkerCount: 1},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	srv := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(func() {
		srv.Close()
		_ = deps.Close(context.Background())
	})
	return srv, deps
}

type envelope struct {
	Data    json.RawMessage        `json:"data"`
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details"`
}

func call(t *testing.T, srv *httptest.Server, method, path, token, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := call(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, status)

	status, env := call(t, srv, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "audit_store")
}

func TestOpaqueRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   string
	}{
		{name: "public", method: http.MethodGet, path: "/api/opaque/public", status: http.StatusOK},
		{name: "protected without token", method: http.MethodGet, path: "/api/opaque/protected", status: http.StatusUnauthorized, code: "missing_credential"},
		{name: "protected with user token", method: http.MethodGet, path: "/api/opaque/protected", token: userToken, status: http.StatusOK},
		{name: "protected with unknown token", method: http.MethodGet, path: "/api/opaque/protected", token: "api_token_nope", status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "admin with user token", method: http.MethodGet, path: "/api/opaque/admin", token: userToken, status: http.StatusForbidden, code: "forbidden"},
		{name: "admin with admin token", method: http.MethodGet, path: "/api/opaque/admin", token: adminToken, status: http.StatusOK},
		{name: "list tokens needs admin", method: http.MethodGet, path: "/api/opaque/list-tokens", token: userToken, status: http.StatusForbidden, code: "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := call(t, srv, tt.method, tt.path, tt.token, "")
			assert.Equal(t, tt.status, status)
			if tt.code != "" {
				assert.Equal(t, tt.code, env.Error)
			}
		})
	}
}

func TestOpaqueIssueUseRevoke(t *testing.T) {
	srv, _ := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/api/opaque/generate-token", adminToken, `{"user":"carol","role":"operator"}`)
	require.Equal(t, http.StatusCreated, status)
	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issued))

	status, _ = call(t, srv, http.MethodPost, "/api/fire/alert", issued.Token, `{"source":"lab"}`)
	assert.Equal(t, http.StatusOK, status, "operator token may raise an alert")

	status, _ = call(t, srv, http.MethodPost, "/api/opaque/revoke-token", adminToken, `{"token":"`+issued.Token+`"}`)
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, srv, http.MethodGet, "/api/opaque/protected", issued.Token, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unknown_token", env.Error)

	status, env = call(t, srv, http.MethodPost, "/api/opaque/revoke-token", adminToken, `{"token":"`+issued.Token+`"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_token", env.Error)
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/api/session/login", "", `{"username":"user1","password":"user123"}`)
	require.Equal(t, http.StatusOK, status)
	var login struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))

	status, _ = call(t, srv, http.MethodGet, "/api/session/profile", login.AccessToken, "")
	assert.Equal(t, http.StatusOK, status)

	status, env = call(t, srv, http.MethodGet, "/api/session/admin", login.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Error)

	status, env = call(t, srv, http.MethodGet, "/api/session/protected", login.RefreshToken, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "wrong_kind", env.Error)

	status, _ = call(t, srv, http.MethodGet, "/api/session/protected", userToken, "")
	assert.Equal(t, http.StatusUnauthorized, status, "opaque tokens are not sessions")

	status, _ = call(t, srv, http.MethodPost, "/api/session/logout", login.AccessToken, "")
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, srv, http.MethodGet, "/api/session/protected", login.AccessToken, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "revoked", env.Error)

	status, env = call(t, srv, http.MethodPost, "/api/session/refresh", login.RefreshToken, "")
	require.Equal(t, http.StatusOK, status)
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))

	status, _ = call(t, srv, http.MethodGet, "/api/session/token-info", refreshed.AccessToken, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestFireRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/api/fire/alert", userToken, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Error)

	status, _ = call(t, srv, http.MethodPost, "/api/fire/alert", adminToken, "")
	assert.Equal(t, http.StatusOK, status, "admin override satisfies operator")

	status, env = call(t, srv, http.MethodGet, "/api/fire/status", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), "running")

	status, _ = call(t, srv, http.MethodPost, "/api/fire/reset", adminToken, "")
	assert.Equal(t, http.StatusOK, status)
}

func TestAuditRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := call(t, srv, http.MethodPost, "/api/session/login", "", `{"username":"admin","password":"admin123"}`)
	require.Equal(t, http.StatusOK, status)

	// the login event is persisted asynchronously
	require.Eventually(t, func() bool {
		status, env := call(t, srv, http.MethodGet, "/api/audit/logs?action=login_succeeded", adminToken, "")
		if status != http.StatusOK {
			return false
		}
		var page struct {
			Count int `json:"count"`
		}
		return json.Unmarshal(env.Data, &page) == nil && page.Count >= 1
	}, 2*time.Second, 20*time.Millisecond)

	status, env := call(t, srv, http.MethodGet, "/api/audit/logs", userToken, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Error)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	status, env := call(t, srv, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error)

	status, env = call(t, srv, http.MethodGet, "/api/session/login", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "method_not_allowed", env.Error)
}

package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services/audit"
	"github.com/upb/authgate/services/credentials"
	"github.com/upb/authgate/services/gate"
	"github.com/upb/authgate/services/opaque"
	"github.com/upb/authgate/services/principals"
	"github.com/upb/authgate/services/revocation"
	"github.com/upb/authgate/services/session"
	"github.com/upb/authgate/utils"
)

type recorder struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (r *recorder) Record(log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *recorder) actions() []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditAction, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

type fixture struct {
	creds  *credentials.Service
	gate   *gate.Gate
	store  *opaque.Store
	rec    *recorder
	events *audit.Events
	logger *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{rec: &recorder{}, logger: zap.NewNop()}
	clock := func() time.Time { return time.Now() }

	reg, err := principals.New([]principals.Seed{
		{Identity: "admin", Role: models.RoleAdmin, Secret: "admin123", Email: "admin@example.com"},
		{Identity: "operator", Role: models.RoleOperator, Secret: "operator123", Email: "operator@example.com"},
		{Identity: "user1", Role: models.RoleUser, Secret: "user123", Email: "user1@example.com"},
	}, principals.NewHasher(bcrypt.MinCost))
	require.NoError(t, err)

	key, err := session.NewHMACKey([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	issuer, err := session.NewIssuer(session.Config{Key: key, Issuer: "authgate-test"}, reg, revocation.NewRegistry())
	require.NoError(t, err)

	f.store = opaque.NewStore()
	require.NoError(t, f.store.Seed("api_token_admin_12345", "admin", models.RoleAdmin))
	require.NoError(t, f.store.Seed("api_token_user_67890", "user1", models.RoleUser))

	f.gate = gate.New(f.store, issuer)
	f.events = audit.NewEvents(f.rec, clock)
	f.creds = credentials.NewService(reg, f.store, issuer, f.gate, f.events, f.logger)
	return f
}

// authorize runs the real gate and returns a request carrying the decision,
// the way the auth middleware would hand it to a handler
func (f *fixture) authorize(t *testing.T, r *http.Request, token string, policy gate.Policy) *http.Request {
	t.Helper()
	d, err := f.gate.CheckToken(token, policy)
	require.NoError(t, err)
	return r.WithContext(middleware.WithDecision(r.Context(), d))
}

func (f *fixture) login(t *testing.T, identity, secret string) models.Session {
	t.Helper()
	sess, err := f.creds.Login(identity, secret)
	require.NoError(t, err)
	return sess
}

func jsonRequest(method, target, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeData decodes a SuccessResponse and re-decodes its data into dst
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) utils.SuccessResponse {
	t.Helper()
	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	if dst != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, dst))
	}
	return utils.SuccessResponse{Message: envelope.Message}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

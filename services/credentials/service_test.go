package credentials

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/services/audit"
	"github.com/upb/authgate/services/gate"
	"github.com/upb/authgate/services/opaque"
	"github.com/upb/authgate/services/principals"
	"github.com/upb/authgate/services/revocation"
	"github.com/upb/authgate/services/session"
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
	svc *Service
	rec *recorder
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{rec: &recorder{}, now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	reg, err := principals.New([]principals.Seed{
		{Identity: "admin", Role: models.RoleAdmin, Secret: "admin123"},
		{Identity: "operator", Role: models.RoleOperator, Secret: "operator123"},
		{Identity: "user1", Role: models.RoleUser, Secret: "user123"},
	}, principals.NewHasher(bcrypt.MinCost))
	require.NoError(t, err)

	key, err := session.NewHMACKey([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	issuer, err := session.NewIssuer(session.Config{Key: key, Issuer: "authgate-test"}, reg, revocation.NewRegistry(), session.WithClock(clock))
	require.NoError(t, err)

	store := opaque.NewStore(opaque.WithClock(clock))
	f.svc = NewService(reg, store, issuer, gate.New(store, issuer), audit.NewEvents(f.rec, clock), zap.NewNop())
	return f
}

func TestService_AdminLogoutScenario(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.Login("admin", "admin123")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Access.Token)
	require.NotEmpty(t, sess.Refresh.Token)

	header := "Bearer " + sess.Access.Token
	policy := gate.SessionPolicy(gate.Exactly(models.RoleOperator))

	p, err := f.svc.Authorize(header, policy)
	require.NoError(t, err, "admin satisfies operator")
	assert.Equal(t, "admin", p.Identity)

	require.NoError(t, f.svc.LogoutSession(sess.Access.Token))

	_, err = f.svc.Authorize(header, policy)
	assert.True(t, errors.Is(err, services.ErrRevoked), "got %v", err)

	_, err = f.svc.VerifySession(sess.Refresh.Token, models.TokenKindRefresh)
	assert.NoError(t, err, "paired refresh token survives logout")

	assert.Equal(t, []models.AuditAction{
		models.AuditActionLoginSucceeded,
		models.AuditActionSessionLogout,
		models.AuditActionAccessDenied,
	}, f.rec.actions())
}

func TestService_OpaqueScenario(t *testing.T) {
	f := newFixture(t)

	cred, err := f.svc.IssueOpaque("svc1", models.RoleService)
	require.NoError(t, err)

	p, err := f.svc.ResolveOpaque(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{Identity: "svc1", Role: models.RoleService}, p)

	require.NoError(t, f.svc.RevokeOpaque(cred.Token))

	_, err = f.svc.ResolveOpaque(cred.Token)
	assert.True(t, errors.Is(err, services.ErrUnknownToken))

	err = f.svc.RevokeOpaque(cred.Token)
	assert.True(t, errors.Is(err, services.ErrUnknownToken), "second revoke fails")

	assert.Equal(t, []models.AuditAction{
		models.AuditActionOpaqueIssued,
		models.AuditActionOpaqueRevoked,
	}, f.rec.actions())

	for _, log := range f.rec.logs {
		assert.NotContains(t, log.TokenRef, cred.Token, "audit rows never carry the token")
	}
}

func TestService_IssueOpaqueValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IssueOpaque("svc1", "root")
	assert.True(t, errors.Is(err, services.ErrInvalidRole))
	assert.True(t, services.IsValidationError(err))

	_, err = f.svc.IssueOpaque("  ", models.RoleUser)
	assert.True(t, services.IsValidationError(err))

	assert.Empty(t, f.svc.ListOpaque())
}

func TestService_LoginFailureAudited(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login("admin", "nope")
	assert.True(t, errors.Is(err, services.ErrInvalidCredentials))

	require.Len(t, f.rec.logs, 1)
	log := f.rec.logs[0]
	assert.Equal(t, models.AuditActionLoginFailed, log.Action)
	require.NotNil(t, log.ErrorCode)
	assert.Equal(t, string(services.CodeInvalidCredentials), *log.ErrorCode)
}

func TestService_KindSeparation(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Login("user1", "user123")
	require.NoError(t, err)

	_, err = f.svc.VerifySession(sess.Access.Token, models.TokenKindRefresh)
	assert.True(t, errors.Is(err, services.ErrWrongKind))
	_, err = f.svc.VerifySession(sess.Refresh.Token, models.TokenKindAccess)
	assert.True(t, errors.Is(err, services.ErrWrongKind))
}

func TestService_RefreshSession(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Login("operator", "operator123")
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Minute)
	_, err = f.svc.VerifySession(sess.Access.Token, models.TokenKindAccess)
	require.True(t, errors.Is(err, services.ErrExpired))

	access, err := f.svc.RefreshSession(sess.Refresh.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Principal, access.Claims.Principal())
	assert.NotEqual(t, sess.Access.Claims.JTI, access.Claims.JTI)

	_, err = f.svc.VerifySession(access.Token, models.TokenKindAccess)
	assert.NoError(t, err)
	assert.Contains(t, f.rec.actions(), models.AuditActionSessionRefreshed)
}

func TestService_CheckRecordsDenial(t *testing.T) {
	f := newFixture(t)
	cred, err := f.svc.IssueOpaque("user1", models.RoleUser)
	require.NoError(t, err)

	meta := audit.RequestMeta{RequestID: "req-9", Method: "GET", Path: "/api/opaque/admin"}
	d, err := f.svc.Check("Bearer "+cred.Token, gate.OpaquePolicy(gate.Exactly(models.RoleAdmin)), meta)
	assert.True(t, errors.Is(err, services.ErrForbidden))
	assert.Equal(t, "user1", d.Principal.Identity)

	_, err = f.svc.Check("", gate.OpaquePolicy(gate.Anyone()), meta)
	assert.True(t, errors.Is(err, services.ErrMissingCredential))

	var denied []*models.AuditLog
	for _, l := range f.rec.logs {
		if l.Action == models.AuditActionAccessDenied {
			denied = append(denied, l)
		}
	}
	require.Len(t, denied, 2)
	assert.Equal(t, "user1", denied[0].Identity)
	assert.Equal(t, "req-9", denied[0].RequestID)
	assert.Equal(t, "opaque", denied[1].CredentialKind)
	assert.Equal(t, string(services.CodeMissingCredential), *denied[1].ErrorCode)
}

func TestService_Principals(t *testing.T) {
	f := newFixture(t)

	list := f.svc.Principals()
	assert.Len(t, list, 3)

	p, err := f.svc.Lookup("operator")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, p.Role)

	_, err = f.svc.Lookup("ghost")
	assert.True(t, errors.Is(err, services.ErrUnknownPrincipal))

	assert.Equal(t, int64(900), f.svc.AccessTTLSeconds())
	assert.Equal(t, int64(30*24*3600), f.svc.RefreshTTLSeconds())
}

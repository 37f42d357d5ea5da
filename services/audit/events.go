package audit

import (
	"time"

	"github.com/upb/authgate/models"
)

// Credential kinds recorded on audit rows
const (
	KindOpaque  = "opaque"
	KindSession = "session"
)

// Events builds audit rows for credential lifecycle events and hands them to a recorder
type Events struct {
	recorder Recorder
	now      func() time.Time
}

// Recorder accepts audit rows. *AuditService implements it.
type Recorder interface {
	Record(log *models.AuditLog) error
}

// NewEvents creates an event builder. A nil recorder discards events.
func NewEvents(recorder Recorder, now func() time.Time) *Events {
	if now == nil {
		now = time.Now
	}
	return &Events{recorder: recorder, now: now}
}

func (e *Events) emit(log *models.AuditLog) {
	if e == nil || e.recorder == nil {
		return
	}
	// AuditService logs and counts every event it drops
	_ = e.recorder.Record(log)
}

func (e *Events) newLog(action models.AuditAction, identity string) *models.AuditLog {
	return models.NewAuditLog(action, identity, e.now().UTC())
}

// LoginSucceeded records a successful login
func (e *Events) LoginSucceeded(sess models.Session) {
	e.emit(e.newLog(models.AuditActionLoginSucceeded, sess.Principal.Identity).
		WithRole(sess.Principal.Role).
		WithCredential(KindSession, sess.Access.Claims.JTI).
		WithDetails(map[string]string{"refresh_jti": sess.Refresh.Claims.JTI}))
}

// LoginFailed records a rejected login
func (e *Events) LoginFailed(identity, code string) {
	e.emit(e.newLog(models.AuditActionLoginFailed, identity).
		WithCredential(KindSession, "").
		WithError(code))
}

// SessionRefreshed records a new access token minted from a refresh token
func (e *Events) SessionRefreshed(access models.SessionClaims) {
	e.emit(e.newLog(models.AuditActionSessionRefreshed, access.Identity).
		WithRole(access.Role).
		WithCredential(KindSession, access.JTI))
}

// SessionLogout records a revoked access token
func (e *Events) SessionLogout(claims models.SessionClaims) {
	e.emit(e.newLog(models.AuditActionSessionLogout, claims.Identity).
		WithRole(claims.Role).
		WithCredential(KindSession, claims.JTI))
}

// OpaqueIssued records a newly issued opaque token by fingerprint
func (e *Events) OpaqueIssued(cred models.OpaqueCredential, fingerprint string) {
	e.emit(e.newLog(models.AuditActionOpaqueIssued, cred.Identity).
		WithRole(cred.Role).
		WithCredential(KindOpaque, fingerprint))
}

// OpaqueRevoked records a revoked opaque token by fingerprint
func (e *Events) OpaqueRevoked(cred models.OpaqueCredential, fingerprint string) {
	e.emit(e.newLog(models.AuditActionOpaqueRevoked, cred.Identity).
		WithRole(cred.Role).
		WithCredential(KindOpaque, fingerprint))
}

// AccessDenied records a rejected authorization. identity is empty when the
// credential could not be resolved.
func (e *Events) AccessDenied(identity string, role models.Role, kind, code string, meta RequestMeta) {
	e.emit(e.newLog(models.AuditActionAccessDenied, identity).
		WithRole(role).
		WithCredential(kind, "").
		WithError(code).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent).
		WithDetails(map[string]string{"method": meta.Method, "path": meta.Path}))
}

// Fire records a fire protocol action
func (e *Events) Fire(action models.AuditAction, actor models.Principal, details interface{}) {
	e.emit(e.newLog(action, actor.Identity).
		WithRole(actor.Role).
		WithDetails(details))
}

// RequestMeta carries request attributes copied onto audit rows
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
	Method    string
	Path      string
}

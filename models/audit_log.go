package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of credential event being audited
type AuditAction string

const (
	AuditActionLoginSucceeded   AuditAction = "login_succeeded"
	AuditActionLoginFailed      AuditAction = "login_failed"
	AuditActionSessionRefreshed AuditAction = "session_refreshed"
	AuditActionSessionLogout    AuditAction = "session_logout"
	AuditActionOpaqueIssued     AuditAction = "opaque_issued"
	AuditActionOpaqueRevoked    AuditAction = "opaque_revoked"
	AuditActionAccessDenied     AuditAction = "access_denied"
	AuditActionFireAlert        AuditAction = "fire_alert"
	AuditActionFireReset        AuditAction = "fire_reset"
)

// AuditLog represents an audit trail entry for a credential event
type AuditLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Action         AuditAction     `json:"action" db:"action"`
	Identity       string          `json:"identity" db:"identity"`
	Role           string          `json:"role" db:"role"`
	CredentialKind string          `json:"credential_kind" db:"credential_kind"` // opaque or session
	TokenRef       string          `json:"token_ref,omitempty" db:"token_ref"`   // jti or opaque token fingerprint
	ErrorCode      *string         `json:"error_code,omitempty" db:"error_code"`
	Details        json.RawMessage `json:"details" db:"details"` // JSONB for flexible metadata
	IPAddress      string          `json:"ip_address" db:"ip_address"`
	UserAgent      string          `json:"user_agent" db:"user_agent"`
	RequestID      string          `json:"request_id" db:"request_id"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "credential_audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, identity string, at time.Time) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Identity:  identity,
		Details:   json.RawMessage("{}"),
		Timestamp: at,
	}
}

// WithRole sets the principal role
func (a *AuditLog) WithRole(role Role) *AuditLog {
	a.Role = string(role)
	return a
}

// WithCredential sets the credential kind and a non-secret reference to it
func (a *AuditLog) WithCredential(kind, ref string) *AuditLog {
	a.CredentialKind = kind
	a.TokenRef = ref
	return a
}

// WithError records the error code that caused a denial
func (a *AuditLog) WithError(code string) *AuditLog {
	a.ErrorCode = &code
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

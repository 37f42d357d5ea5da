// Package credentials is the entry point the transport layer talks to. It
// wires the principal registry, opaque store, session issuer and access gate
// together and records an audit event for every state change and denial.
package credentials

import (
	"strings"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/services/audit"
	"github.com/upb/authgate/services/gate"
	"github.com/upb/authgate/services/opaque"
	"github.com/upb/authgate/services/principals"
	"github.com/upb/authgate/services/session"
	"go.uber.org/zap"
)

// Service exposes credential lifecycle and authorization operations
type Service struct {
	principals *principals.Registry
	opaque     *opaque.Store
	sessions   *session.Issuer
	gate       *gate.Gate
	events     *audit.Events
	logger     *zap.Logger
}

// NewService creates a Service. events may be nil to skip auditing.
func NewService(
	registry *principals.Registry,
	store *opaque.Store,
	issuer *session.Issuer,
	g *gate.Gate,
	events *audit.Events,
	logger *zap.Logger,
) *Service {
	return &Service{
		principals: registry,
		opaque:     store,
		sessions:   issuer,
		gate:       g,
		events:     events,
		logger:     logger,
	}
}

// IssueOpaque issues a new opaque token for identity with role
func (s *Service) IssueOpaque(identity string, role models.Role) (models.OpaqueCredential, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return models.OpaqueCredential{}, services.ErrInvalidInput.WithDetail("field", "user")
	}
	if !role.Valid() {
		return models.OpaqueCredential{}, services.ErrInvalidRole.WithDetail("role", string(role))
	}

	cred, err := s.opaque.Issue(identity, role)
	if err != nil {
		s.logger.Error("failed to issue opaque token", zap.String("identity", identity), zap.Error(err))
		return models.OpaqueCredential{}, err
	}

	s.events.OpaqueIssued(cred, opaque.Fingerprint(cred.Token))
	s.logger.Info("opaque token issued",
		zap.String("identity", identity),
		zap.String("role", string(role)))
	return cred, nil
}

// ResolveOpaque returns the principal bound to token
func (s *Service) ResolveOpaque(token string) (models.Principal, error) {
	return s.opaque.Resolve(token)
}

// RevokeOpaque revokes token. A second revoke fails with ErrUnknownToken.
func (s *Service) RevokeOpaque(token string) error {
	cred, err := s.opaque.Revoke(token)
	if err != nil {
		return err
	}

	s.events.OpaqueRevoked(cred, opaque.Fingerprint(token))
	s.logger.Info("opaque token revoked", zap.String("identity", cred.Identity))
	return nil
}

// ListOpaque returns the live opaque tokens
func (s *Service) ListOpaque() []models.OpaqueCredential {
	return s.opaque.List()
}

// Login verifies identity and secret and issues a session
func (s *Service) Login(identity, secret string) (models.Session, error) {
	sess, err := s.sessions.Login(identity, secret)
	if err != nil {
		s.events.LoginFailed(identity, string(services.GetErrorCode(err)))
		s.logger.Info("login rejected",
			zap.String("identity", identity),
			zap.String("code", string(services.GetErrorCode(err))))
		return models.Session{}, err
	}

	s.events.LoginSucceeded(sess)
	s.logger.Info("login succeeded",
		zap.String("identity", sess.Principal.Identity),
		zap.String("role", string(sess.Principal.Role)),
		zap.String("jti", sess.Access.Claims.JTI))
	return sess, nil
}

// VerifySession verifies token as the expected kind
func (s *Service) VerifySession(token string, kind models.TokenKind) (models.SessionClaims, error) {
	return s.sessions.Verify(token, kind)
}

// RefreshSession mints a new access token from a refresh token
func (s *Service) RefreshSession(refreshToken string) (models.IssuedToken, error) {
	access, err := s.sessions.Refresh(refreshToken)
	if err != nil {
		return models.IssuedToken{}, err
	}

	s.events.SessionRefreshed(access.Claims)
	s.logger.Debug("session refreshed",
		zap.String("identity", access.Claims.Identity),
		zap.String("jti", access.Claims.JTI))
	return access, nil
}

// LogoutSession revokes an access token. The paired refresh token stays valid.
func (s *Service) LogoutSession(accessToken string) error {
	claims, err := s.sessions.Logout(accessToken)
	if err != nil {
		return err
	}

	s.events.SessionLogout(claims)
	s.logger.Info("session logged out",
		zap.String("identity", claims.Identity),
		zap.String("jti", claims.JTI))
	return nil
}

// Authorize checks an Authorization header value against policy
func (s *Service) Authorize(header string, policy gate.Policy) (models.Principal, error) {
	d, err := s.Check(header, policy, audit.RequestMeta{})
	if err != nil {
		return models.Principal{}, err
	}
	return d.Principal, nil
}

// Check authorizes a request and records denials with the request metadata
func (s *Service) Check(header string, policy gate.Policy, meta audit.RequestMeta) (gate.Decision, error) {
	d, err := s.gate.Check(header, policy)
	if err != nil {
		kind := string(d.Kind)
		if kind == "" && len(policy.Kinds) == 1 {
			kind = string(policy.Kinds[0])
		}
		s.events.AccessDenied(d.Principal.Identity, d.Principal.Role, kind, string(services.GetErrorCode(err)), meta)
		return d, err
	}
	return d, nil
}

// Principals lists the registered login principals
func (s *Service) Principals() []models.Principal {
	return s.principals.List()
}

// Lookup returns a registered principal
func (s *Service) Lookup(identity string) (models.Principal, error) {
	return s.principals.Lookup(identity)
}

// AccessTTLSeconds returns the access token lifetime in seconds
func (s *Service) AccessTTLSeconds() int64 { return int64(s.sessions.AccessTTL().Seconds()) }

// RefreshTTLSeconds returns the refresh token lifetime in seconds
func (s *Service) RefreshTTLSeconds() int64 { return int64(s.sessions.RefreshTTL().Seconds()) }

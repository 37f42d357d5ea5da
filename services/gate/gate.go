// Package gate decides whether a presented bearer credential may reach an endpoint.
package gate

import (
	"errors"
	"strings"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
)

// OpaqueResolver resolves opaque tokens to principals
type OpaqueResolver interface {
	Resolve(token string) (models.Principal, error)
}

// SessionVerifier verifies signed session tokens
type SessionVerifier interface {
	Verify(token string, expected models.TokenKind) (models.SessionClaims, error)
}

// Decision is the outcome of a successful authorization
type Decision struct {
	Principal models.Principal
	Kind      CredentialKind
	Token     string
	// Claims is set for session credentials
	Claims *models.SessionClaims
}

// Gate authorizes requests against per-endpoint policies
type Gate struct {
	opaque        OpaqueResolver
	sessions      SessionVerifier
	adminOverride bool
}

// Option configures a Gate
type Option func(*Gate)

// WithAdminOverride controls whether admin satisfies every requirement (on by default)
func WithAdminOverride(enabled bool) Option {
	return func(g *Gate) { g.adminOverride = enabled }
}

// New creates a Gate. Either resolver may be nil when its kind is never accepted.
func New(opaque OpaqueResolver, sessions SessionVerifier, opts ...Option) *Gate {
	g := &Gate{opaque: opaque, sessions: sessions, adminOverride: true}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks an Authorization header value against policy
func (g *Gate) Authorize(header string, policy Policy) (models.Principal, error) {
	d, err := g.Check(header, policy)
	if err != nil {
		return models.Principal{}, err
	}
	return d.Principal, nil
}

// AuthorizeToken checks an already extracted bearer token against policy
func (g *Gate) AuthorizeToken(token string, policy Policy) (models.Principal, error) {
	d, err := g.CheckToken(token, policy)
	if err != nil {
		return models.Principal{}, err
	}
	return d.Principal, nil
}

// Check is Authorize returning the full decision
func (g *Gate) Check(header string, policy Policy) (Decision, error) {
	token, err := ExtractBearerToken(header)
	if err != nil {
		return Decision{}, err
	}
	return g.CheckToken(token, policy)
}

// CheckToken is AuthorizeToken returning the full decision.
// On ErrForbidden the decision still names the resolved principal.
func (g *Gate) CheckToken(token string, policy Policy) (Decision, error) {
	if token == "" {
		return Decision{}, services.ErrMissingCredential
	}

	d, err := g.authenticate(token, policy)
	if err != nil {
		return Decision{}, err
	}

	if !g.Satisfies(d.Principal, policy.Requirement) {
		return d, services.ErrForbidden.
			WithDetail("required_role", policy.Requirement.String()).
			WithDetail("role", string(d.Principal.Role))
	}
	return d, nil
}

// Satisfies reports whether p meets req
func (g *Gate) Satisfies(p models.Principal, req Requirement) bool {
	switch req.kind {
	case requireAnyone:
		return true
	case requireExactly:
		return p.Role == req.role || (g.adminOverride && p.IsAdmin())
	case requireRoleOrAdmin:
		return p.Role == req.role || p.IsAdmin()
	default:
		return false
	}
}

func (g *Gate) authenticate(token string, policy Policy) (Decision, error) {
	kind := KindOpaque
	switch {
	case policy.accepts(KindOpaque) && policy.accepts(KindSession):
		if LooksLikeSession(token) {
			kind = KindSession
		}
	case policy.accepts(KindSession):
		kind = KindSession
	}

	if kind == KindSession {
		d, err := g.verifySession(token)
		if err == nil {
			return d, nil
		}
		// an opaque token may itself contain two dots
		if !policy.accepts(KindOpaque) || !errors.Is(err, services.ErrBadSignature) || g.opaque == nil {
			return Decision{}, err
		}
		p, oerr := g.opaque.Resolve(token)
		if oerr != nil {
			return Decision{}, err
		}
		return Decision{Principal: p, Kind: KindOpaque, Token: token}, nil
	}

	if g.opaque == nil {
		return Decision{}, services.ErrInvalidToken
	}
	p, err := g.opaque.Resolve(token)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Principal: p, Kind: KindOpaque, Token: token}, nil
}

func (g *Gate) verifySession(token string) (Decision, error) {
	if g.sessions == nil {
		return Decision{}, services.ErrBadSignature
	}
	claims, err := g.sessions.Verify(token, models.TokenKindAccess)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Principal: claims.Principal(), Kind: KindSession, Token: token, Claims: &claims}, nil
}

// LooksLikeSession reports whether token has the three-segment shape of a signed session token
func LooksLikeSession(token string) bool {
	return strings.Count(token, ".") == 2
}

// ExtractBearerToken extracts the token from a "Bearer <token>" header value
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", services.ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", services.ErrMalformedCredential
	}

	token := strings.TrimSpace(parts[1])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", services.ErrMalformedCredential
	}
	return token, nil
}

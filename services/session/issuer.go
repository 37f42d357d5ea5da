// Package session issues and verifies signed access/refresh session tokens.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// PrincipalVerifier checks a login secret
type PrincipalVerifier interface {
	Verify(identity, secret string) (models.Principal, error)
}

// RevocationSet records and answers revoked jti values
type RevocationSet interface {
	Add(jti string, expiresAt time.Time)
	Contains(jti string) bool
}

// Config holds issuer settings
type Config struct {
	Key        Key
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// claims is the wire form of a session token
type claims struct {
	jwt.RegisteredClaims
	Role models.Role      `json:"role"`
	Type models.TokenKind `json:"type"`
}

// Issuer mints and verifies session tokens. Time is read only through its clock.
type Issuer struct {
	cfg        Config
	principals PrincipalVerifier
	revoked    RevocationSet
	parser     *jwt.Parser
	now        func() time.Time
}

// Option configures an Issuer
type Option func(*Issuer)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer
func NewIssuer(cfg Config, principals PrincipalVerifier, revoked RevocationSet, opts ...Option) (*Issuer, error) {
	if cfg.Key.method == nil {
		return nil, ErrInvalidKey
	}
	if principals == nil || revoked == nil {
		return nil, errors.New("session issuer requires a principal verifier and a revocation set")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	i := &Issuer{
		cfg:        cfg,
		principals: principals,
		revoked:    revoked,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{cfg.Key.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AccessTTL returns the configured access token lifetime
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// Alg reports the JWS algorithm tokens are signed with
func (i *Issuer) Alg() string { return i.cfg.Key.Alg() }

// Login verifies the secret and issues an access/refresh pair
func (i *Issuer) Login(identity, secret string) (models.Session, error) {
	principal, err := i.principals.Verify(identity, secret)
	if err != nil {
		return models.Session{}, err
	}

	access, err := i.mint(principal, models.TokenKindAccess)
	if err != nil {
		return models.Session{}, err
	}
	refresh, err := i.mint(principal, models.TokenKindRefresh)
	if err != nil {
		return models.Session{}, err
	}

	return models.Session{Principal: principal, Access: access, Refresh: refresh}, nil
}

// Verify checks signature, kind, expiry and revocation, in that order
func (i *Issuer) Verify(token string, expected models.TokenKind) (models.SessionClaims, error) {
	var c claims
	parsed, err := i.parser.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return i.cfg.Key.verifyKey, nil
	})
	if err != nil || !parsed.Valid {
		return models.SessionClaims{}, services.ErrBadSignature.Wrap(err)
	}
	if c.Issuer != i.cfg.Issuer || c.ID == "" || c.Subject == "" || c.ExpiresAt == nil || !c.Role.Valid() {
		return models.SessionClaims{}, services.ErrBadSignature
	}

	sc := models.SessionClaims{
		Identity:  c.Subject,
		Role:      c.Role,
		JTI:       c.ID,
		Kind:      c.Type,
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}
	if c.IssuedAt != nil {
		sc.IssuedAt = c.IssuedAt.Time.UTC()
	}

	if sc.Kind != expected {
		return models.SessionClaims{}, services.ErrWrongKind.
			WithDetail("expected", string(expected)).
			WithDetail("actual", string(sc.Kind))
	}
	if sc.ExpiredAt(i.now()) {
		return models.SessionClaims{}, services.ErrExpired
	}
	if i.revoked.Contains(sc.JTI) {
		return models.SessionClaims{}, services.ErrRevoked
	}
	return sc, nil
}

// Refresh mints a new access token from a valid refresh token.
// The refresh token itself is not rotated.
func (i *Issuer) Refresh(refreshToken string) (models.IssuedToken, error) {
	sc, err := i.Verify(refreshToken, models.TokenKindRefresh)
	if err != nil {
		return models.IssuedToken{}, err
	}
	return i.mint(sc.Principal(), models.TokenKindAccess)
}

// Revoke adds the token's jti to the revocation set until its expiry
func (i *Issuer) Revoke(sc models.SessionClaims) {
	i.revoked.Add(sc.JTI, sc.ExpiresAt)
}

// Logout verifies an access token and revokes it. The paired refresh
// token is left valid.
func (i *Issuer) Logout(accessToken string) (models.SessionClaims, error) {
	sc, err := i.Verify(accessToken, models.TokenKindAccess)
	if err != nil {
		return models.SessionClaims{}, err
	}
	i.Revoke(sc)
	return sc, nil
}

func (i *Issuer) mint(p models.Principal, kind models.TokenKind) (models.IssuedToken, error) {
	jti, err := uuid.NewRandom()
	if err != nil {
		return models.IssuedToken{}, services.WrapInternal("generate token id", err)
	}

	ttl := i.cfg.AccessTTL
	if kind == models.TokenKindRefresh {
		ttl = i.cfg.RefreshTTL
	}
	// NumericDate carries whole seconds
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   p.Identity,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: p.Role,
		Type: kind,
	}
	signed, err := jwt.NewWithClaims(i.cfg.Key.method, c).SignedString(i.cfg.Key.signKey)
	if err != nil {
		return models.IssuedToken{}, services.WrapInternal("sign session token", err)
	}

	return models.IssuedToken{
		Token: signed,
		Claims: models.SessionClaims{
			Identity:  p.Identity,
			Role:      p.Role,
			JTI:       c.ID,
			Kind:      kind,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}, nil
}

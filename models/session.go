package models

import "time"

// TokenKind distinguishes short-lived access tokens from long-lived refresh tokens
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known token kind
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// SessionClaims is the verified content of a signed session token.
// Claims are immutable once issued; state changes are expressed through revocation.
type SessionClaims struct {
	Identity  string    `json:"identity"`
	Role      Role      `json:"role"`
	JTI       string    `json:"jti"`
	Kind      TokenKind `json:"type"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Principal returns the identity and role carried by the claims
func (c SessionClaims) Principal() Principal {
	return Principal{Identity: c.Identity, Role: c.Role}
}

// ExpiredAt reports whether the token is expired at now.
// A token is valid strictly before its expiry instant.
func (c SessionClaims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IssuedToken pairs a signed token string with the claims it encodes
type IssuedToken struct {
	Token  string        `json:"token"`
	Claims SessionClaims `json:"claims"`
}

// Session is an access token and refresh token co-issued at login.
// Both carry the same identity but have independent jti values and lifetimes.
type Session struct {
	Principal Principal   `json:"principal"`
	Access    IssuedToken `json:"access"`
	Refresh   IssuedToken `json:"refresh"`
}

package models

import "time"

// Role is the access level assigned to a principal
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleUser     Role = "user"
	RoleService  Role = "service"
)

// Roles lists the closed set of roles in declaration order
var Roles = []Role{RoleAdmin, RoleOperator, RoleUser, RoleService}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleUser, RoleService:
		return true
	default:
		return false
	}
}

// String returns the role name
func (r Role) String() string {
	return string(r)
}

// Principal is an authenticated identity together with its assigned role.
// Secret material is never carried on a Principal.
type Principal struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
	Email    string `json:"email,omitempty"`
}

// IsAdmin returns true if the principal has the admin role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// OpaqueCredential is a random bearer token bound to a principal at issuance.
// It has no expiry; it stays valid until removed from the store.
type OpaqueCredential struct {
	Token    string    `json:"token"`
	Identity string    `json:"user"`
	Role     Role      `json:"role"`
	IssuedAt time.Time `json:"issued_at"`
}

// Principal returns the identity and role bound to the credential
func (c OpaqueCredential) Principal() Principal {
	return Principal{Identity: c.Identity, Role: c.Role}
}

package gate

import (
	"fmt"

	"github.com/upb/authgate/models"
)

// CredentialKind names a family of bearer credentials
type CredentialKind string

const (
	KindOpaque  CredentialKind = "opaque"
	KindSession CredentialKind = "session"
)

type requirementKind int

const (
	requireAnyone requirementKind = iota
	requireExactly
	requireRoleOrAdmin
)

// Requirement is the role rule an endpoint enforces. The zero value admits anyone.
type Requirement struct {
	kind requirementKind
	role models.Role
}

// Anyone admits every authenticated principal
func Anyone() Requirement { return Requirement{kind: requireAnyone} }

// Exactly admits principals holding role r
func Exactly(r models.Role) Requirement { return Requirement{kind: requireExactly, role: r} }

// RoleOrAdmin admits principals holding role r or admin
func RoleOrAdmin(r models.Role) Requirement { return Requirement{kind: requireRoleOrAdmin, role: r} }

// Role returns the role named by the requirement, empty for Anyone
func (r Requirement) Role() models.Role { return r.role }

func (r Requirement) String() string {
	switch r.kind {
	case requireExactly:
		return string(r.role)
	case requireRoleOrAdmin:
		return fmt.Sprintf("%s-or-admin", r.role)
	default:
		return "any"
	}
}

// Policy declares which credential kinds an endpoint accepts and what role it requires.
// An empty Kinds list accepts both kinds.
type Policy struct {
	Kinds       []CredentialKind
	Requirement Requirement
}

// OpaquePolicy accepts opaque tokens only
func OpaquePolicy(req Requirement) Policy {
	return Policy{Kinds: []CredentialKind{KindOpaque}, Requirement: req}
}

// SessionPolicy accepts session access tokens only
func SessionPolicy(req Requirement) Policy {
	return Policy{Kinds: []CredentialKind{KindSession}, Requirement: req}
}

// AnyPolicy accepts either kind
func AnyPolicy(req Requirement) Policy {
	return Policy{Kinds: []CredentialKind{KindOpaque, KindSession}, Requirement: req}
}

func (p Policy) accepts(k CredentialKind) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, kind := range p.Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Package principals holds the known identities, their secret material and
// role assignment. The registry is built once at startup and is read-only
// afterwards.
package principals

import (
	"fmt"
	"sort"
	"strings"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
)

// Seed describes one principal loaded from configuration.
// Exactly one of Secret or SecretHash is used; SecretHash wins when both are set.
type Seed struct {
	Identity   string
	Role       models.Role
	Email      string
	Secret     string
	SecretHash string
}

type record struct {
	principal models.Principal
	hash      string
}

// Registry resolves identities to principals and verifies their secrets
type Registry struct {
	hasher    *Hasher
	records   map[string]record
	dummyHash string
}

// New builds a registry from seeds. Plaintext secrets are hashed here and
// then discarded.
func New(seeds []Seed, hasher *Hasher) (*Registry, error) {
	if hasher == nil {
		hasher = NewHasher(0)
	}

	dummy, err := hasher.Hash([]byte("authgate-timing-equalizer"))
	if err != nil {
		return nil, fmt.Errorf("hash dummy secret: %w", err)
	}

	r := &Registry{
		hasher:    hasher,
		records:   make(map[string]record, len(seeds)),
		dummyHash: dummy,
	}

	for _, s := range seeds {
		identity := strings.TrimSpace(s.Identity)
		if identity == "" {
			return nil, fmt.Errorf("principal identity is required")
		}
		if !s.Role.Valid() {
			return nil, fmt.Errorf("principal %q: invalid role %q", identity, s.Role)
		}
		if _, exists := r.records[identity]; exists {
			return nil, fmt.Errorf("principal %q defined twice", identity)
		}

		hash := s.SecretHash
		if hash == "" {
			if s.Secret == "" {
				return nil, fmt.Errorf("principal %q: secret is required", identity)
			}
			hash, err = hasher.Hash([]byte(s.Secret))
			if err != nil {
				return nil, fmt.Errorf("principal %q: hash secret: %w", identity, err)
			}
		}

		r.records[identity] = record{
			principal: models.Principal{Identity: identity, Role: s.Role, Email: s.Email},
			hash:      hash,
		}
	}

	return r, nil
}

// Verify checks identity and secret. Unknown identities and wrong secrets
// return the same error after the same amount of bcrypt work.
func (r *Registry) Verify(identity, secret string) (models.Principal, error) {
	rec, ok := r.records[identity]
	hash := rec.hash
	if !ok {
		hash = r.dummyHash
	}

	err := r.hasher.Compare(hash, []byte(secret))
	if !ok || err != nil {
		return models.Principal{}, services.ErrInvalidCredentials
	}
	return rec.principal, nil
}

// RoleOf returns the role assigned to identity
func (r *Registry) RoleOf(identity string) (models.Role, error) {
	rec, ok := r.records[identity]
	if !ok {
		return "", services.ErrUnknownPrincipal.WithDetail("identity", identity)
	}
	return rec.principal.Role, nil
}

// Lookup returns the principal for identity
func (r *Registry) Lookup(identity string) (models.Principal, error) {
	rec, ok := r.records[identity]
	if !ok {
		return models.Principal{}, services.ErrUnknownPrincipal.WithDetail("identity", identity)
	}
	return rec.principal, nil
}

// List returns all principals sorted by identity
func (r *Registry) List() []models.Principal {
	out := make([]models.Principal, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.principal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Count returns the number of registered principals
func (r *Registry) Count() int {
	return len(r.records)
}

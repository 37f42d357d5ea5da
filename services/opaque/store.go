// Package opaque implements the opaque bearer token store: random,
// claim-less tokens whose validity is store membership alone.
package opaque

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
)

const (
	// TokenPrefix marks generated API tokens
	TokenPrefix = "api_token_"

	// tokenBytes is 256 bits of entropy
	tokenBytes = 32
)

// Store maps opaque token strings to the principal they were issued for.
// Tokens never expire; they live until revoked.
type Store struct {
	mu      sync.RWMutex
	tokens  map[string]models.OpaqueCredential
	revoked map[string]struct{}

	random io.Reader
	now    func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithRandom overrides the random source (crypto/rand by default)
func WithRandom(r io.Reader) Option {
	return func(s *Store) { s.random = r }
}

// WithClock overrides the time source used for IssuedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store
func NewStore(opts ...Option) *Store {
	s := &Store{
		tokens:  make(map[string]models.OpaqueCredential),
		revoked: make(map[string]struct{}),
		random:  rand.Reader,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a new token bound to identity and role.
// A failing random source is an environment failure and is returned as an internal error.
func (s *Store) Issue(identity string, role models.Role) (models.OpaqueCredential, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return models.OpaqueCredential{}, services.WrapInternal("read random source", err)
	}

	cred := models.OpaqueCredential{
		Token:    TokenPrefix + base64.RawURLEncoding.EncodeToString(buf),
		Identity: identity,
		Role:     role,
		IssuedAt: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.tokens[cred.Token]; taken {
		return models.OpaqueCredential{}, services.WrapInternal("token collision", fmt.Errorf("duplicate token generated"))
	}
	s.tokens[cred.Token] = cred
	return cred, nil
}

// Seed registers a pre-shared token, such as a static token from configuration
func (s *Store) Seed(token, identity string, role models.Role) error {
	if token == "" {
		return services.ErrInvalidInput.WithDetail("field", "token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token]; exists {
		return services.ErrConflict.WithDetail("reason", "token already seeded")
	}
	s.tokens[token] = models.OpaqueCredential{
		Token:    token,
		Identity: identity,
		Role:     role,
		IssuedAt: s.now().UTC(),
	}
	return nil
}

// Resolve returns the principal bound to token. Tokens that were revoked
// report ErrUnknownToken, tokens never seen report ErrInvalidToken.
func (s *Store) Resolve(token string) (models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cred, ok := s.tokens[token]; ok {
		return cred.Principal(), nil
	}
	if _, gone := s.revoked[token]; gone {
		return models.Principal{}, services.ErrUnknownToken
	}
	return models.Principal{}, services.ErrInvalidToken
}

// Revoke removes token from the store. Revoking a token that is not
// present, including one already revoked, fails with ErrUnknownToken.
func (s *Store) Revoke(token string) (models.OpaqueCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.tokens[token]
	if !ok {
		return models.OpaqueCredential{}, services.ErrUnknownToken
	}
	delete(s.tokens, token)
	s.revoked[token] = struct{}{}
	return cred, nil
}

// List returns a snapshot of live credentials ordered by issue time
func (s *Store) List() []models.OpaqueCredential {
	s.mu.RLock()
	out := make([]models.OpaqueCredential, 0, len(s.tokens))
	for _, cred := range s.tokens {
		out = append(out, cred)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}

// Len returns the number of live credentials
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Fingerprint returns a short non-secret reference to token for logs and audit rows
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

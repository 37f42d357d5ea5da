// Package revocation tracks revoked session token ids.
//
// Entries live in process memory only. A restart forgets them, so a token
// revoked before the restart is accepted again until its own expiry.
package revocation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry is the set of revoked jti values. Each entry remembers the
// expiry of the token it revokes so that Prune can drop entries once the
// token would be rejected as expired anyway.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]time.Time)}
}

// Add marks jti as revoked. A zero expiresAt keeps the entry until restart.
func (r *Registry) Add(jti string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[jti]; ok && (prev.IsZero() || prev.After(expiresAt)) {
		return
	}
	r.entries[jti] = expiresAt
}

// Contains reports whether jti has been revoked
func (r *Registry) Contains(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[jti]
	return ok
}

// Len returns the number of tracked entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Prune drops entries whose token expired at or before now and returns how many were removed
func (r *Registry) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for jti, exp := range r.entries {
		if !exp.IsZero() && !now.Before(exp) {
			delete(r.entries, jti)
			removed++
		}
	}
	return removed
}

// StartPruner runs Prune every interval until ctx is cancelled.
// The returned channel is closed when the pruner exits.
func (r *Registry) StartPruner(ctx context.Context, interval time.Duration, now func() time.Time, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Prune(now()); n > 0 {
					logger.Debug("pruned expired revocations",
						zap.Int("removed", n),
						zap.Int("remaining", r.Len()))
				}
			}
		}
	}()
	return done
}

// Package memory provides an in-process audit repository used when no
// database is configured. Entries are bounded and lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
)

// DefaultCapacity bounds the number of retained entries
const DefaultCapacity = 10000

// AuditRepository keeps the most recent audit logs in a ring
type AuditRepository struct {
	mu       sync.RWMutex
	logs     []*models.AuditLog
	capacity int
}

// NewAuditRepository creates a repository retaining at most capacity entries
func NewAuditRepository(capacity int) *AuditRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &AuditRepository{capacity: capacity}
}

// Insert appends log, evicting the oldest entry when full
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	if log == nil {
		return fmt.Errorf("nil audit log")
	}
	cp := *log

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) >= r.capacity {
		r.logs = r.logs[1:]
	}
	r.logs = append(r.logs, &cp)
	return nil
}

// InsertBatch appends every log
func (r *AuditRepository) InsertBatch(ctx context.Context, logs []*models.AuditLog) error {
	for _, log := range logs {
		if err := r.Insert(ctx, log); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves an audit log by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, log := range r.logs {
		if log.ID == id {
			cp := *log
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("audit log %s: %w", id, repositories.ErrNotFound)
}

// List retrieves audit logs matching filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	matched := r.collect(func(log *models.AuditLog) bool {
		if filter.Identity != "" && log.Identity != filter.Identity {
			return false
		}
		if filter.Action != "" && log.Action != filter.Action {
			return false
		}
		if !filter.Since.IsZero() && log.Timestamp.Before(filter.Since) {
			return false
		}
		if !filter.Until.IsZero() && log.Timestamp.After(filter.Until) {
			return false
		}
		return true
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// GetByRequestID retrieves audit logs by request ID
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error) {
	return r.collect(func(log *models.AuditLog) bool { return log.RequestID == requestID }), nil
}

// Ping always succeeds
func (r *AuditRepository) Ping(ctx context.Context) error { return nil }

// Len returns the number of retained entries
func (r *AuditRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs)
}

func (r *AuditRepository) collect(keep func(*models.AuditLog) bool) []*models.AuditLog {
	r.mu.RLock()
	var out []*models.AuditLog
	for _, log := range r.logs {
		if keep(log) {
			cp := *log
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/authgate/services/audit"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Audit     *audit.Stats      `json:"audit,omitempty"`
}

// AuditHealth reports on the audit pipeline
type AuditHealth interface {
	Ping(ctx context.Context) error
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	audit  AuditHealth
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler. auditHealth may be nil.
func NewHealthHandler(auditHealth AuditHealth, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		audit:  auditHealth,
		logger: logger,
		now:    time.Now,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(timeFormat),
	})
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that the audit store is reachable and its workers are running
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true
	var stats *audit.Stats

	if h.audit == nil {
		checks["audit_store"] = "not_configured"
	} else {
		if err := h.audit.Ping(ctx); err != nil {
			h.logger.Warn("audit store health check failed", zap.Error(err))
			checks["audit_store"] = "unhealthy"
			healthy = false
		} else {
			checks["audit_store"] = "healthy"
		}

		s := h.audit.GetStats()
		stats = &s
		if s.Started {
			checks["audit_workers"] = "running"
		} else {
			checks["audit_workers"] = "stopped"
			healthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(timeFormat),
		Checks:    checks,
		Audit:     stats,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// MaxAuditPageSize caps the limit query parameter
const MaxAuditPageSize = 500

// AuditQuerier reads persisted audit events
type AuditQuerier interface {
	Query(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)
}

// AuditHandler serves the admin audit log endpoints
type AuditHandler struct {
	audit  AuditQuerier
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit AuditQuerier, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// HandleList handles GET /logs?identity=&action=&since=&until=&limit=&offset=
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, fields := parseAuditFilter(r)
	if len(fields) > 0 {
		_ = utils.WriteBadRequest(w, "Invalid query parameters", fields)
		return
	}

	logs, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"count":  len(logs),
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"logs":   logs,
	})
}

// HandleGet handles GET /logs/{id}
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "id must be a valid UUID", nil)
		return
	}

	log, err := h.audit.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, log)
}

func parseAuditFilter(r *http.Request) (repositories.AuditFilter, map[string]interface{}) {
	q := r.URL.Query()
	fields := make(map[string]interface{})
	filter := repositories.AuditFilter{
		Identity: q.Get("identity"),
		Action:   models.AuditAction(q.Get("action")),
		Limit:    100,
	}

	parseTime := func(name string, dst *time.Time) {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				fields[name] = name + " must be an RFC3339 timestamp"
				return
			}
			*dst = t
		}
	}
	parseTime("since", &filter.Since)
	parseTime("until", &filter.Until)

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxAuditPageSize {
			fields["limit"] = "limit must be between 1 and " + strconv.Itoa(MaxAuditPageSize)
		} else {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["offset"] = "offset must be a non-negative integer"
		} else {
			filter.Offset = n
		}
	}

	return filter, fields
}

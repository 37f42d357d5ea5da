package handlers

import (
	"net/http"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services/fireprotocol"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// FirePanel runs the fire protocol
type FirePanel interface {
	RaiseAlert(source string, actor models.Principal) fireprotocol.AlertReport
	Reset(actor models.Principal) fireprotocol.Status
	Status() fireprotocol.Status
}

// FireAuditor records fire protocol actions
type FireAuditor interface {
	Fire(action models.AuditAction, actor models.Principal, details interface{})
}

// FireHandler serves the fire protocol endpoints
type FireHandler struct {
	panel   FirePanel
	auditor FireAuditor
	logger  *zap.Logger
}

// NewFireHandler creates a new FireHandler. auditor may be nil.
func NewFireHandler(panel FirePanel, auditor FireAuditor, logger *zap.Logger) *FireHandler {
	return &FireHandler{panel: panel, auditor: auditor, logger: logger}
}

// AlertRequest is the optional body of POST /alert
type AlertRequest struct {
	Source string `json:"source,omitempty" validate:"omitempty,max=128,printascii"`
}

// HandleAlert handles POST /alert
func (h *FireHandler) HandleAlert(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r, h.logger)
	if !ok {
		return
	}

	var req AlertRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeAndValidate(r, &req); err != nil {
			HandleValidationError(w, err, h.logger)
			return
		}
	}

	report := h.panel.RaiseAlert(req.Source, p)
	h.audit(models.AuditActionFireAlert, p, report)

	_ = utils.WriteMessage(w, report.PanelStatus, report)
}

// HandleReset handles POST /reset
func (h *FireHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r, h.logger)
	if !ok {
		return
	}

	status := h.panel.Reset(p)
	h.audit(models.AuditActionFireReset, p, status)

	_ = utils.WriteMessage(w, "All fire systems reset to ready", status)
}

// HandleStatus handles GET /status
func (h *FireHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.panel.Status())
}

func (h *FireHandler) audit(action models.AuditAction, actor models.Principal, details interface{}) {
	if h.auditor == nil {
		return
	}
	h.auditor.Fire(action, actor, details)
}

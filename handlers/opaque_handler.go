package handlers

import (
	"net/http"

	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/services/opaque"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// OpaqueCredentials issues, lists and revokes opaque API tokens
type OpaqueCredentials interface {
	IssueOpaque(identity string, role models.Role) (models.OpaqueCredential, error)
	RevokeOpaque(token string) error
	ListOpaque() []models.OpaqueCredential
}

// OpaqueHandler serves the opaque API token endpoints
type OpaqueHandler struct {
	creds  OpaqueCredentials
	logger *zap.Logger
}

// NewOpaqueHandler creates a new OpaqueHandler
func NewOpaqueHandler(creds OpaqueCredentials, logger *zap.Logger) *OpaqueHandler {
	return &OpaqueHandler{creds: creds, logger: logger}
}

// GenerateTokenRequest is the body of POST /generate-token
type GenerateTokenRequest struct {
	User string `json:"user" validate:"required,max=128"`
	Role string `json:"role,omitempty"`
}

// GenerateTokenResponse is returned for a freshly issued token
type GenerateTokenResponse struct {
	Token    string      `json:"token"`
	User     string      `json:"user"`
	Role     models.Role `json:"role"`
	IssuedAt string      `json:"issued_at"`
	Usage    string      `json:"usage"`
}

// RevokeTokenRequest is the body of POST /revoke-token
type RevokeTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// TokenListing describes a live token without exposing it
type TokenListing struct {
	Fingerprint string      `json:"fingerprint"`
	User        string      `json:"user"`
	Role        models.Role `json:"role"`
	IssuedAt    string      `json:"issued_at"`
}

// HandlePublic handles GET /public
func (h *OpaqueHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, "This endpoint is public", map[string]string{
		"info": "No bearer token required",
	})
}

// HandleProtected handles GET /protected
func (h *OpaqueHandler) HandleProtected(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r, h.logger)
	if !ok {
		return
	}

	_ = utils.WriteMessage(w, "Accessed endpoint protected by API token", map[string]string{
		"user": p.Identity,
		"role": string(p.Role),
	})
}

// HandleAdmin handles GET /admin
func (h *OpaqueHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r, h.logger)
	if !ok {
		return
	}

	_ = utils.WriteMessage(w, "Accessed admin endpoint", map[string]string{
		"user":           p.Identity,
		"sensitive_data": "visible to admins only",
	})
}

// HandleGenerateToken handles POST /generate-token
func (h *OpaqueHandler) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req GenerateTokenRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	role := models.RoleUser
	if req.Role != "" {
		role = models.Role(req.Role)
	}

	cred, err := h.creds.IssueOpaque(req.User, role)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("api token generated",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("identity", cred.Identity),
		zap.String("role", string(cred.Role)),
		zap.String("fingerprint", opaque.Fingerprint(cred.Token)))

	_ = utils.WriteCreated(w, GenerateTokenResponse{
		Token:    cred.Token,
		User:     cred.Identity,
		Role:     cred.Role,
		IssuedAt: cred.IssuedAt.Format(timeFormat),
		Usage:    "Authorization: Bearer " + cred.Token,
	})
}

// HandleListTokens handles GET /list-tokens
func (h *OpaqueHandler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	creds := h.creds.ListOpaque()
	tokens := make([]TokenListing, 0, len(creds))
	for _, c := range creds {
		tokens = append(tokens, TokenListing{
			Fingerprint: opaque.Fingerprint(c.Token),
			User:        c.Identity,
			Role:        c.Role,
			IssuedAt:    c.IssuedAt.Format(timeFormat),
		})
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"count":  len(tokens),
		"tokens": tokens,
	})
}

// HandleRevokeToken handles POST /revoke-token
func (h *OpaqueHandler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req RevokeTokenRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.creds.RevokeOpaque(req.Token); err != nil {
		if services.GetErrorCode(err) == services.CodeUnknownToken {
			HandleServiceErrorStatus(w, http.StatusNotFound, err, h.logger)
			return
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, "Token revoked", map[string]string{
		"fingerprint": opaque.Fingerprint(req.Token),
	})
}

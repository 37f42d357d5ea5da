package handlers

import (
	"net/http"

	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/services/gate"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// SessionCredentials is the session half of the credentials service
type SessionCredentials interface {
	Login(identity, secret string) (models.Session, error)
	RefreshSession(refreshToken string) (models.IssuedToken, error)
	LogoutSession(accessToken string) error
	Lookup(identity string) (models.Principal, error)
	Principals() []models.Principal
	AccessTTLSeconds() int64
	RefreshTTLSeconds() int64
}

// SessionHandler serves the login/refresh/logout endpoints and the
// session-protected demo resources
type SessionHandler struct {
	creds  SessionCredentials
	logger *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(creds SessionCredentials, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{creds: creds, logger: logger}
}

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// UserResponse is the public view of a principal
type UserResponse struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	Email    string      `json:"email,omitempty"`
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	TokenType        string       `json:"token_type"`
	AccessExpiresIn  int64        `json:"access_expires_in"`
	RefreshExpiresIn int64        `json:"refresh_expires_in"`
	User             UserResponse `json:"user"`
}

// RefreshResponse is returned by a successful refresh
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenInfoResponse describes the presented access token
type TokenInfoResponse struct {
	User      string           `json:"user"`
	TokenType models.TokenKind `json:"token_type"`
	JTI       string           `json:"jti"`
	Exp       int64            `json:"exp"`
	Iat       int64            `json:"iat"`
	Role      models.Role      `json:"role"`
}

func toUserResponse(p models.Principal) UserResponse {
	return UserResponse{Username: p.Identity, Role: p.Role, Email: p.Email}
}

// HandlePublic handles GET /public
func (h *SessionHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, "This endpoint is public", map[string]string{
		"info": "No session token required",
	})
}

// HandleLogin handles POST /login
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	sess, err := h.creds.Login(req.Username, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, "Login successful", LoginResponse{
		AccessToken:      sess.Access.Token,
		RefreshToken:     sess.Refresh.Token,
		TokenType:        "Bearer",
		AccessExpiresIn:  h.creds.AccessTTLSeconds(),
		RefreshExpiresIn: h.creds.RefreshTTLSeconds(),
		User:             toUserResponse(sess.Principal),
	})
}

// HandleRefresh handles POST /refresh. The refresh token is presented as the bearer credential.
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := gate.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	access, err := h.creds.RefreshSession(token)
	if err != nil {
		h.logger.Info("refresh rejected",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("code", string(services.GetErrorCode(err))))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, "Token refreshed", RefreshResponse{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   h.creds.AccessTTLSeconds(),
	})
}

// HandleProtected handles GET /protected
func (h *SessionHandler) HandleProtected(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r, h.logger)
	if !ok {
		return
	}

	_ = utils.WriteMessage(w, "Accessed endpoint protected by session token", h.describe(p))
}

// HandleProfile handles GET /profile
func (h *SessionHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r, h.logger)
	if !ok {
		return
	}

	_ = utils.WriteOK(w, h.describe(p))
}

// HandleAdmin handles GET /admin
func (h *SessionHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r, h.logger)
	if !ok {
		return
	}

	all := h.creds.Principals()
	names := make([]string, 0, len(all))
	for _, u := range all {
		names = append(names, u.Identity)
	}

	_ = utils.WriteMessage(w, "Accessed admin endpoint", map[string]interface{}{
		"user":           p.Identity,
		"sensitive_data": "visible to admins only",
		"all_users":      names,
	})
}

// HandleLogout handles POST /logout. Only the presented access token is revoked.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	d, ok := middleware.GetDecisionFromContext(r.Context())
	if !ok || d.Claims == nil {
		HandleServiceError(w, services.ErrMissingCredential, h.logger)
		return
	}

	if err := h.creds.LogoutSession(d.Token); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, "Logged out", map[string]string{
		"info": "Access token revoked",
		"jti":  d.Claims.JTI,
	})
}

// HandleTokenInfo handles GET /token-info
func (h *SessionHandler) HandleTokenInfo(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetSessionClaimsFromContext(r.Context())
	if claims == nil {
		HandleServiceError(w, services.ErrMissingCredential, h.logger)
		return
	}

	_ = utils.WriteOK(w, TokenInfoResponse{
		User:      claims.Identity,
		TokenType: claims.Kind,
		JTI:       claims.JTI,
		Exp:       claims.ExpiresAt.Unix(),
		Iat:       claims.IssuedAt.Unix(),
		Role:      claims.Role,
	})
}

// HandleUsers handles GET /users. Secrets never leave the registry.
func (h *SessionHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	all := h.creds.Principals()
	users := make([]UserResponse, 0, len(all))
	for _, p := range all {
		users = append(users, toUserResponse(p))
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"users": users,
	})
}

// describe enriches p with registry data such as email
func (h *SessionHandler) describe(p models.Principal) UserResponse {
	if full, err := h.creds.Lookup(p.Identity); err == nil {
		p.Email = full.Email
	}
	return toUserResponse(p)
}

package middleware

import (
	"net/http"

	"github.com/upb/authgate/services"
	"github.com/upb/authgate/services/audit"
	"github.com/upb/authgate/services/gate"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// Authorizer decides whether an Authorization header satisfies a policy
type Authorizer interface {
	Check(header string, policy gate.Policy, meta audit.RequestMeta) (gate.Decision, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	authorizer Authorizer
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authorizer Authorizer, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authorizer: authorizer,
		logger:     logger,
	}
}

// Require returns a middleware that admits only requests whose bearer
// credential satisfies policy. The decision is stored in the request context.
func (m *AuthMiddleware) Require(policy gate.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			decision, err := m.authorizer.Check(r.Header.Get("Authorization"), policy, RequestMeta(r))
			if err != nil {
				m.logDenied(requestID, decision, policy, err)
				_ = utils.WriteDomainError(w, err)
				return
			}

			m.logger.Debug("authorization successful",
				zap.String("request_id", requestID),
				zap.String("identity", decision.Principal.Identity),
				zap.String("role", string(decision.Principal.Role)),
				zap.String("kind", string(decision.Kind)))

			next.ServeHTTP(w, r.WithContext(WithDecision(ctx, decision)))
		})
	}
}

func (m *AuthMiddleware) logDenied(requestID string, d gate.Decision, policy gate.Policy, err error) {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("code", string(services.GetErrorCode(err))),
		zap.String("required", policy.Requirement.String()),
	}
	if d.Principal.Identity != "" {
		fields = append(fields,
			zap.String("identity", d.Principal.Identity),
			zap.String("role", string(d.Principal.Role)))
	}

	if services.IsInternalError(err) {
		m.logger.Error("authorization failed", append(fields, zap.Error(err))...)
		return
	}
	m.logger.Warn("authorization denied", fields...)
}

// RequestMeta copies the audit-relevant attributes of r
func RequestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		RequestID: GetRequestIDFromContext(r.Context()),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
}

package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services/gate"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// DecisionKey is the context key for the gate decision of the current request
	DecisionKey contextKey = "decision"
)

// GetRequestIDFromContext retrieves the request ID from context.
// It falls back to the id set by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetDecisionFromContext retrieves the gate decision from context
func GetDecisionFromContext(ctx context.Context) (gate.Decision, bool) {
	d, ok := ctx.Value(DecisionKey).(gate.Decision)
	return d, ok
}

// WithDecision adds a gate decision to the context
func WithDecision(ctx context.Context, d gate.Decision) context.Context {
	return context.WithValue(ctx, DecisionKey, d)
}

// GetPrincipalFromContext returns the authenticated principal, if any
func GetPrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	d, ok := GetDecisionFromContext(ctx)
	if !ok {
		return models.Principal{}, false
	}
	return d.Principal, true
}

// GetSessionClaimsFromContext returns the verified session claims when the
// request was authorized with a session token
func GetSessionClaimsFromContext(ctx context.Context) *models.SessionClaims {
	d, ok := GetDecisionFromContext(ctx)
	if !ok {
		return nil
	}
	return d.Claims
}

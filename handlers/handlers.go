// Package handlers holds the thin HTTP layer over the credential services.
// Handlers decode and validate input, call one service method and map the
// result through the utils writers.
package handlers

import (
	"net/http"
	"time"

	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"go.uber.org/zap"
)

const timeFormat = time.RFC3339

// principalOrUnauthorized returns the request principal, writing a 401 when
// the route was mounted without the auth middleware
func principalOrUnauthorized(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.Principal, bool) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		HandleServiceError(w, services.ErrMissingCredential, logger)
	}
	return p, ok
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/authgate/app"
	"github.com/upb/authgate/handlers"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services/gate"
	"github.com/upb/authgate/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if deps.Config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.Config.Server.RequestTimeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// JSON 404/405 handlers, set before mounting so subrouters inherit them
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteErrorCode(w, http.StatusMethodNotAllowed, "", "method not allowed", nil)
	})

	auth := deps.AuthMiddleware
	logger := deps.Logger

	// Health check endpoints
	health := handlers.NewHealthHandler(deps.AuditService, logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/api", func(r chi.Router) {
		// Opaque tokens
		opaque := handlers.NewOpaqueHandler(deps.Credentials, logger)
		r.Route("/opaque", func(r chi.Router) {
			r.Get("/public", opaque.HandlePublic)
			r.With(auth.Require(gate.OpaquePolicy(gate.Anyone()))).Get("/protected", opaque.HandleProtected)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(gate.OpaquePolicy(gate.Exactly(models.RoleAdmin))))
				r.Get("/admin", opaque.HandleAdmin)
				r.Post("/generate-token", opaque.HandleGenerateToken)
				r.Get("/list-tokens", opaque.HandleListTokens)
				r.Post("/revoke-token", opaque.HandleRevokeToken)
			})
		})

		// Signed sessions
		session := handlers.NewSessionHandler(deps.Credentials, logger)
		r.Route("/session", func(r chi.Router) {
			r.Get("/public", session.HandlePublic)
			r.Post("/login", session.HandleLogin)
			r.Post("/refresh", session.HandleRefresh)
			r.Get("/users", session.HandleUsers)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(gate.SessionPolicy(gate.Anyone())))
				r.Get("/protected", session.HandleProtected)
				r.Get("/profile", session.HandleProfile)
				r.Post("/logout", session.HandleLogout)
				r.Get("/token-info", session.HandleTokenInfo)
			})
			r.With(auth.Require(gate.SessionPolicy(gate.RoleOrAdmin(models.RoleAdmin)))).Get("/admin", session.HandleAdmin)
		})

		// Fire protocol accepts either credential kind
		fire := handlers.NewFireHandler(deps.FirePanel, deps.Events, logger)
		r.Route("/fire", func(r chi.Router) {
			r.Get("/status", fire.HandleStatus)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(gate.AnyPolicy(gate.RoleOrAdmin(models.RoleOperator))))
				r.Post("/alert", fire.HandleAlert)
				r.Post("/reset", fire.HandleReset)
			})
		})

		// Audit logs (require admin role)
		audit := handlers.NewAuditHandler(deps.AuditService, logger)
		r.Route("/audit", func(r chi.Router) {
			r.Use(auth.Require(gate.AnyPolicy(gate.Exactly(models.RoleAdmin))))
			r.Get("/logs", audit.HandleList)
			r.Get("/logs/{id}", audit.HandleGet)
		})
	})

	return r
}

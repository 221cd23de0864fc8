package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/health"
	"github.com/sandeepkv93/credential-session-core/internal/http/handler"
	"github.com/sandeepkv93/credential-session-core/internal/http/middleware"
	"github.com/sandeepkv93/credential-session-core/internal/http/response"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

type Dependencies struct {
	AuthHandler               *handler.AuthHandler
	PasswordResetHandler      *handler.PasswordResetHandler
	MeHandler                 *handler.MeHandler
	AdminHandler              *handler.AdminHandler
	Authenticator             service.Authenticator
	AuthRateLimitRPM          int
	PasswordResetRateLimitRPM int
	APIRateLimitRPM           int
	GlobalRateLimiter         GlobalRateLimiterFunc
	AuthRateLimiter           AuthRateLimiterFunc
	PasswordResetRateLimiter  PasswordResetRateLimiterFunc
	Readiness                 *health.ProbeRunner
	EnableOTelHTTP            bool
	MaxRequestBodyBytes       int64
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler
type PasswordResetRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	bodyLimit := dep.MaxRequestBodyBytes
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(bodyLimit))

	apiLimiter := func(next http.Handler) http.Handler { return next }
	if dep.GlobalRateLimiter != nil {
		apiLimiter = dep.GlobalRateLimiter
	} else if dep.APIRateLimitRPM > 0 {
		apiLimiter = middleware.NewDistributedRateLimiter(middleware.NewLocalFixedWindowLimiter(), dep.APIRateLimitRPM, time.Minute, middleware.FailClosed, "api", middleware.SubjectOrIPKey).Middleware()
	}
	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	resetLimiter := dep.PasswordResetRateLimiter
	if resetLimiter == nil {
		resetLimiter = middleware.NewRateLimiter(dep.PasswordResetRateLimitRPM, time.Minute, "password_reset").Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.Authenticator)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(requireAuth).Post("/logout-all", dep.AuthHandler.LogoutAll)
		})

		r.Route("/password-reset", func(r chi.Router) {
			r.With(resetLimiter).Post("/request", dep.PasswordResetHandler.Request)
			r.With(authLimiter).Post("/confirm", dep.PasswordResetHandler.Confirm)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(apiLimiter)
			r.Get("/me/sessions", dep.MeHandler.Sessions)
			r.Delete("/me/sessions", dep.MeHandler.RevokeAllSessions)
			r.Delete("/me/sessions/{session_id}", dep.MeHandler.RevokeSession)
			r.With(authLimiter).Patch("/me/password", dep.MeHandler.ChangePassword)

			r.Route("/admin/users/{id}", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdministrator, domain.RoleGod))
				r.Patch("/inactivate", dep.AdminHandler.Inactivate)
				r.Patch("/reactivate", dep.AdminHandler.Reactivate)
				r.Post("/reset-password", dep.AdminHandler.ResetPassword)
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

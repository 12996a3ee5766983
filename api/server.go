/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. The
  goal endpoints live under /goal so one server can stand in for both
  backend bases (client.DefaultGoalBaseURL and client.DefaultKPIBaseURL).

MIDDLEWARE STACK:
  1. RequestID:  honours X-Request-ID from the client, otherwise generates one
  2. Recoverer:  panic recovery (500 instead of crash)
  3. Logger:     zap request log
  4. CORS:       allowed origins from config
  5. Rate limit: per IP, requests per minute from config (0 disables)
  6. Auth:       HS256 bearer tokens when a JWT secret is configured

ROUTE GROUPS:
  /health               liveness, never authenticated
  /goal/*               goal settings and targets
  /*                    KPI endpoints
  /scenarios/*          demo data (dev only)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/warp/yield-pacing/config"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg *config.ServerConfig, log *zap.Logger) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	middleware.RequestIDHeader = "X-Request-ID"
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.Limit(
			cfg.RateLimitPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			}),
		))
	}

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(bearerAuth(cfg.JWTSecret, log))
		}

		r.Route("/goal", func(r chi.Router) {
			r.Get("/goal-settings", h.GetGoalSettings)
			r.Put("/goal-settings", h.PutGoalSettings)
			r.Get("/goal-targets", h.GetGoalTargets)
			r.Put("/goal-targets", h.PutGoalTargets)
			r.Get("/goal-daily-targets", h.GetGoalDailyTargets)
			r.Put("/goal-daily-targets", h.PutGoalDailyTargets)
		})

		r.Get("/ms-targets", h.GetMsTargets)
		r.Put("/ms-targets", h.PutMsTargets)
		r.Get("/important-metrics", h.GetImportantMetrics)
		r.Put("/important-metrics", h.PutImportantMetric)
		r.Get("/ms-period-settings", h.GetMsPeriodSettings)
		r.Put("/ms-period-settings", h.PutMsPeriodSettings)
		r.Get("/kpi-targets", h.GetKPITargets)
		r.Put("/kpi-targets", h.PutKPITargets)
		r.Get("/members", h.ListMembers)

		r.Route("/kpi/yield", func(r chi.Router) {
			r.Get("/", h.GetYield)
			r.Get("/trend", h.GetYieldTrend)
			r.Get("/breakdown", h.GetYieldBreakdown)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/promptforge/internal/api/handlers"
	"github.com/nikhilbhutani/promptforge/internal/api/middleware"
	"github.com/nikhilbhutani/promptforge/internal/app"
	"github.com/nikhilbhutani/promptforge/internal/auth"
	"github.com/nikhilbhutani/promptforge/internal/config"
)

type Router struct {
	mux     *chi.Mux
	cfg     *config.Config
	svc     *app.Services
	queue   handlers.RunQueue
	health  *handlers.HealthHandler
	jwt     *auth.JWTMiddleware
	rbac    *auth.RBAC
	limiter *middleware.RateLimiter
}

// NewRouter wires HTTP routes onto svc. q may be nil, which disables
// asynchronous runs.
func NewRouter(cfg *config.Config, svc *app.Services, q handlers.RunQueue, health *handlers.HealthHandler) *Router {
	jwt := auth.NewJWTMiddleware(cfg.Auth.JWTSecret)
	return &Router{
		mux:    chi.NewRouter(),
		cfg:    cfg,
		svc:    svc,
		queue:  q,
		health: health,
		jwt:    jwt,
		rbac:   auth.NewRBAC(jwt),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	if rt.cfg.Server.RateLimitRPS > 0 {
		rt.limiter = middleware.NewRateLimiter(rt.cfg.Server.RateLimitRPS, rt.cfg.Server.RateLimitBurst)
		r.Use(rt.limiter.Limit)
	}

	// Health endpoints (no auth)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)

	require := rt.rbac.RequirePermission

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		projectH := handlers.NewProjectHandler(rt.svc.Projects)
		r.Route("/projects", func(r chi.Router) {
			r.With(require(auth.PermProjectsWrite)).Post("/", projectH.Create)
			r.With(require(auth.PermProjectsRead)).Get("/", projectH.List)
			r.With(require(auth.PermProjectsRead)).Get("/{id}", projectH.Get)
			r.With(require(auth.PermProjectsWrite)).Patch("/{id}", projectH.Update)
			r.With(require(auth.PermProjectsWrite)).Delete("/{id}", projectH.Delete)
		})

		promptH := handlers.NewPromptHandler(rt.svc.Prompts)
		runH := handlers.NewRunHandler(rt.svc.Runs, rt.queue)
		r.Route("/prompts", func(r chi.Router) {
			r.With(require(auth.PermPromptsWrite)).Post("/", promptH.Save)
			r.With(require(auth.PermPromptsRead)).Get("/", promptH.List)
			r.With(require(auth.PermPromptsRead)).Get("/{id}", promptH.Get)
			r.With(require(auth.PermPromptsWrite)).Patch("/{id}", promptH.Update)
			r.With(require(auth.PermPromptsWrite)).Delete("/{id}", promptH.Delete)
			r.With(require(auth.PermPromptsWrite)).Post("/{id}/publish", promptH.Publish)
			r.With(require(auth.PermPromptsRead)).Get("/{id}/versions", promptH.ListVersions)
			r.With(require(auth.PermPromptsRead)).Get("/{id}/versions/{version}", promptH.GetVersion)
			r.With(require(auth.PermPromptsRead)).Post("/{id}/render", promptH.RenderPrompt)
			r.With(require(auth.PermRunsRead)).Get("/{id}/runs", runH.ListForPrompt)
		})

		r.Route("/runs", func(r chi.Router) {
			r.With(require(auth.PermRunsExecute)).Post("/", runH.Execute)
			r.With(require(auth.PermRunsExecute)).Post("/async", runH.Enqueue)
			r.With(require(auth.PermRunsRead)).Get("/tasks/{taskID}", runH.TaskStatus)
			r.With(require(auth.PermRunsRead)).Get("/{id}", runH.Get)
		})

		providerH := handlers.NewProviderHandler(rt.svc.Providers)
		r.Route("/providers", func(r chi.Router) {
			r.With(require(auth.PermProvidersWrite)).Post("/", providerH.Create)
			r.With(require(auth.PermProvidersRead)).Get("/", providerH.List)
			r.With(require(auth.PermProvidersRead)).Get("/default", providerH.GetDefault)
			r.With(require(auth.PermProvidersRead)).Get("/models", providerH.Models)
			r.With(require(auth.PermProvidersRead)).Get("/{id}", providerH.Get)
			r.With(require(auth.PermProvidersWrite)).Patch("/{id}", providerH.Update)
			r.With(require(auth.PermProvidersWrite)).Post("/{id}/default", providerH.SetDefault)
		})

		settingsH := handlers.NewSettingsHandler(rt.svc.Settings)
		r.Route("/settings", func(r chi.Router) {
			r.Use(require(auth.PermSettingsManage))
			r.Post("/", settingsH.Create)
			r.Get("/", settingsH.List)
			r.Get("/{key}", settingsH.Get)
			r.Patch("/{key}", settingsH.Update)
			r.Delete("/{key}", settingsH.Delete)
		})
	})

	return r
}

// Close stops background work started by Setup.
func (rt *Router) Close() {
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
}

package api

import (
	"net/http"

	"github.com/ashureev/designdrill/internal/agent"
	"github.com/ashureev/designdrill/internal/identity"
	"github.com/ashureev/designdrill/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds everything the HTTP surface needs.
type RouterConfig struct {
	Handler        *Handler
	Chat           *agent.Handler
	Issuer         *identity.Issuer
	Metrics        *middleware.Metrics // nil disables /metrics
	AllowedOrigins []string            // empty allows any origin
	RequestLogging bool
}

// NewRouter builds the backend routes.
func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if cfg.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(origins))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// Public routes.
	r.Get("/health", h.HealthHandler)
	r.Post("/users/signup", h.Signup)
	r.Post("/users/login", h.Login)
	r.Post("/users/refresh", h.Refresh)
	r.Route("/problems", func(r chi.Router) {
		r.Get("/", h.ListProblems)
		r.Get("/search/query", h.SearchProblems)
		r.Get("/{id}", h.GetProblem)
	})

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.Issuer))

		r.Get("/users/me", h.Me)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/user/my-sessions", h.MySessions)
			r.Get("/problem/{problemID}", h.SessionForProblem)
			r.Get("/{id}", h.GetSession)
			r.Delete("/{id}", h.Abandon)
			r.Put("/{id}/autosave", h.Autosave)
			r.Put("/{id}/pause", h.Pause)
			r.Put("/{id}/resume", h.Resume)
			r.Post("/{id}/chat", h.AddChatMessage)
			r.Post("/{id}/check", h.Check)
			r.Post("/{id}/submit", h.Submit)
			if cfg.Chat != nil {
				cfg.Chat.RegisterRoutes(r)
			}
		})

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/user/my-submissions", h.MySubmissions)
			r.Get("/{id}", h.GetSubmission)
		})
	})

	return r
}

package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	// API routes — protected by API key auth
	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}/status", h.GetStatus)
		r.Post("/projects/{id}/classify", h.Classify)

		// Image stage + confirmation gate
		r.Post("/projects/{id}/images", h.GenerateImages)
		r.Post("/projects/{id}/images/confirm-all", h.ConfirmAllImages)
		r.Post("/projects/{id}/images/{index}/confirm", h.ConfirmImage)
		r.Post("/projects/{id}/images/{index}/regenerate", h.RegenerateImage)

		// Video stage + confirmation gate
		r.Post("/projects/{id}/videos", h.GenerateVideos)
		r.Post("/projects/{id}/videos/confirm-all", h.ConfirmAllVideos)
		r.Post("/projects/{id}/videos/{index}/confirm", h.ConfirmVideo)
		r.Post("/projects/{id}/videos/{index}/regenerate", h.RegenerateVideo)

		// Animation + composition
		r.Post("/projects/{id}/animate", h.Animate)
		r.Post("/projects/{id}/compose", h.Compose)
	})

	return r
}

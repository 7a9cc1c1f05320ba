package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fieldworks/teamchat/internal/api/middleware"
	"github.com/fieldworks/teamchat/internal/handlers"
)

// NewRouter creates and configures the HTTP router. redisClient may be nil;
// rate limiting is skipped without it.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // message bodies cap at 5000 chars
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, logger)
		r.Use(limiter.Middleware)
	}

	// CORS - the web client may be served from another origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID", "X-User-Role"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no identity required)
	r.Get("/health", h.Health)

	// Identified routes (identity asserted upstream by the gateway)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Get("/channels", h.ListChannels)
		r.Post("/channels", h.CreateChannel)
		r.Get("/channels/by-name/{name}", h.GetChannelByName)
		r.Patch("/channels/{id}", h.UpdateChannel)
		r.Delete("/channels/{id}", h.DeleteChannel)
		r.Put("/channels/{id}/members/{userID}", h.AddMember)
		r.Delete("/channels/{id}/members/{userID}", h.RemoveMember)

		r.Get("/channels/{id}/messages", h.ListMessages)
		r.Post("/channels/{id}/messages", h.SendMessage)
		r.Post("/channels/{id}/read", h.MarkRead)
		r.Get("/channels/{id}/unread", h.Unread)
		r.Post("/channels/{id}/typing", h.Typing)
		r.Get("/channels/{id}/presence", h.ChannelPresence)

		r.Post("/dm/{userID}", h.GetOrCreateDM)

		r.Post("/assistant/stream", h.StreamAssistant)
		r.Delete("/assistant/stream/{turnID}", h.CancelAssistant)
		r.Post("/assistant/draft", h.Draft)

		r.Post("/presence/heartbeat", h.Heartbeat)
		r.Get("/presence", h.Presence)
	})

	return r
}

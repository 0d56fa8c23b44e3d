package api

import (
	"encoding/json"
	"net/http"

	"github.com/blackroad-ai/gateway/internal/api/middleware"
	"github.com/blackroad-ai/gateway/internal/pipeline"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts every gateway HTTP endpoint.
func NewRouter(gw *pipeline.Gateway) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", gw.HandleHealthz)
	r.Get("/health", gw.HandleHealth)
	r.Get("/metrics", gw.HandleMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/agent", gw.HandleAgent)
		r.Post("/verify", gw.HandleVerify)
		r.Get("/agents", gw.HandleAgents)
		r.Get("/providers", gw.HandleProviders)
		r.Get("/memory", gw.HandleMemory)
		r.Get("/memory/recent", gw.HandleMemoryRecent)
		r.Get("/worlds", gw.HandleWorlds)
	})

	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(notFoundHandler)

	return r
}

// notFoundHandler is the catch-all: any unmatched method/path returns 404
// with the uniform error envelope.
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "error",
		"error":      "Not found",
		"request_id": chimw.GetReqID(r.Context()),
	})
}

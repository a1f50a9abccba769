package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"aotcache/internal/config"
	"aotcache/internal/handlers"
	"aotcache/internal/metrics"
	"aotcache/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h *handlers.Handler, cfg config.ServerConfig) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())                          // panic recovery
	r.Use(middleware.Timeout(cfg.RequestTimeout.Duration)) // request timeout
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))

	// routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/keys", h.DeriveKey)

		r.Post("/sessions", h.NewSession)
		r.Delete("/sessions/{handle}", h.DeleteSession)

		r.Get("/programs/{key}", h.GetProgram)
		r.Put("/programs/{key}", h.PutProgram)
		r.Delete("/programs/{key}", h.DeleteProgram)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}

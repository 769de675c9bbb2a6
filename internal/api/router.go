package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

func NewRouter(handlers *Handlers, secret string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", handlers.HandleRoot)
	r.Get("/healthz", handlers.HandleHealth)

	// Service metrics, without the per-achievement series
	r.Get("/metrics", handlers.HandleAllMetrics)
	r.Get("/metrics/steam", handlers.HandleSteamMetrics)

	r.Group(func(r chi.Router) {
		r.Use(RequireToken(secret))
		r.Post("/rpc/{method}", handlers.HandleRPC)
		r.Get("/events", handlers.HandleEvents)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Log.WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"method":     r.Method,
			"ip":         r.RemoteAddr,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request handled")
	})
}

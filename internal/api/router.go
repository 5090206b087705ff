package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/septivank/iot-telemetry-hub/internal/logging"
	"go.uber.org/zap"
)

// Mounter registers a service's routes on a router.
type Mounter interface {
	Mount(r chi.Router)
}

// NewRouter builds the base router shared by every service: request ids,
// panic recovery, access logging and /health. Each mounter adds its routes.
func NewRouter(serviceName string, logger *zap.Logger, mounters ...Mounter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondOK(w, map[string]string{
			"service": serviceName,
			"status":  "ok",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	for _, m := range mounters {
		m.Mount(r)
	}
	return r
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logging.WithRequestID(logger, middleware.GetReqID(r.Context())).Debug("request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pixelgate-gateway/internal/handlers"
	"pixelgate-gateway/internal/metrics"
	"pixelgate-gateway/internal/middleware"
	"pixelgate-gateway/internal/verify"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, imageHandler *handlers.ImageHandler, verifier verify.Verifier, requestTimeout time.Duration) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())             // panic recovery
	r.Use(middleware.Timeout(requestTimeout)) // request timeout

	// routes
	r.Route("/prompt", func(r chi.Router) {
		if verifier != nil {
			r.Use(middleware.VerifyHuman(verifier)) // gate before any cache work
		}
		r.Get("/*", imageHandler.Generate)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}

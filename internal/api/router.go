package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/quicksubmit/backend/internal/auth"
	"github.com/quicksubmit/backend/internal/metrics"
	"github.com/quicksubmit/backend/internal/middleware"
	"go.uber.org/zap"
)

// Router holds all handlers and creates the chi router
type Router struct {
	coverImageHandler *CoverImageHandler
	healthHandler     *HealthHandler
	metrics           *metrics.Metrics
	jwtManager        *auth.JWTManager
	locales           *middleware.LocaleNegotiator
	corsOrigins       []string
	publicDir         string
	logger            *zap.Logger
}

// NewRouter creates a new router. publicDir is served under /public when
// cover images are kept on local disk; pass "" otherwise.
func NewRouter(
	coverImageHandler *CoverImageHandler,
	healthHandler *HealthHandler,
	m *metrics.Metrics,
	jwtManager *auth.JWTManager,
	locales *middleware.LocaleNegotiator,
	corsOrigins []string,
	publicDir string,
	logger *zap.Logger,
) *Router {
	return &Router{
		coverImageHandler: coverImageHandler,
		healthHandler:     healthHandler,
		metrics:           m,
		jwtManager:        jwtManager,
		locales:           locales,
		corsOrigins:       corsOrigins,
		publicDir:         publicDir,
		logger:            logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.corsOrigins))
	r.Use(chimiddleware.Compress(5))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	if rt.publicDir != "" {
		r.Handle("/public/*", http.StripPrefix("/public/", http.FileServer(http.Dir(rt.publicDir))))
	}

	// API v1
	r.Route("/api/v1/contexts/{contextID}", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(rt.jwtManager))
		r.Use(middleware.LocaleMiddleware(rt.locales))

		r.Post("/cover-image/upload", rt.coverImageHandler.Upload)
		r.Post("/cover-image/delete", rt.coverImageHandler.Delete)

		r.Route("/submissions/{submissionID}/cover-image", func(r chi.Router) {
			r.Get("/", rt.coverImageHandler.Show)
			r.Post("/", rt.coverImageHandler.Commit)
		})
	})

	return r
}

// Package server exposes the catalog, the price-lookup gate, and the stats
// collector over an authenticated JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/piececount/puzzledex/internal/gate"
	"github.com/piececount/puzzledex/internal/monitoring"
	"github.com/piececount/puzzledex/internal/stats"
	"github.com/piececount/puzzledex/internal/store"
)

// Server wires the HTTP layer to the application services.
type Server struct {
	store   store.Store
	gate    *gate.Gate
	stats   *stats.Collector
	metrics *monitoring.Metrics
	// tokens maps bearer token to the user ID it authenticates.
	tokens map[string]string
	port   int
}

// New creates a Server.
func New(st store.Store, g *gate.Gate, collector *stats.Collector, metrics *monitoring.Metrics, tokens map[string]string, port int) *Server {
	return &Server{
		store:   st,
		gate:    g,
		stats:   collector,
		metrics: metrics,
		tokens:  tokens,
		port:    port,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/puzzles", func(r chi.Router) {
			r.Post("/", s.handleCreatePuzzle)
			r.Get("/", s.handleListPuzzles)

			r.Route("/{puzzleID}", func(r chi.Router) {
				r.Get("/", s.handleGetPuzzle)
				r.Put("/", s.handleUpdatePuzzle)
				r.Delete("/", s.handleDeletePuzzle)

				r.Post("/photos", s.handleAddPhoto)
				r.Get("/photos", s.handleListPhotos)
				r.Put("/photos/order", s.handleReorderPhotos)

				r.Post("/price", s.handleRequestPrice)
				r.Get("/searches", s.handleListSearches)
			})
		})

		r.Get("/stats", s.handleStats)
	})

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", s.port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

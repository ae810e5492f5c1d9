package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/AhsanAkhlaq/skewplay/internal/dataset"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
	"github.com/AhsanAkhlaq/skewplay/internal/sync"
	"github.com/AhsanAkhlaq/skewplay/internal/workflow"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router       *chi.Mux
	store        store.Store
	datasets     *dataset.Registry
	machine      *workflow.Machine
	orchestrator *workflow.Orchestrator
	broker       *sync.Broker
	logger       *slog.Logger
	addr         string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, s store.Store, d *dataset.Registry, m *workflow.Machine, o *workflow.Orchestrator, b *sync.Broker, logger *slog.Logger) *Server {
	srv := &Server{
		router:       chi.NewRouter(),
		store:        s,
		datasets:     d,
		machine:      m,
		orchestrator: o,
		broker:       b,
		logger:       logger,
		addr:         addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-User-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Post("/v1/profile", s.handleRegisterProfile)

	s.router.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get("/v1/profile", s.handleGetProfile)
		r.Get("/v1/stats", s.handleGetStats)
		r.Get("/v1/samples", s.handleListSamples)
		r.Get("/v1/stream", s.handleStream)
		r.Post("/v1/logout", s.handleLogout)

		r.Route("/v1/datasets", func(r chi.Router) {
			r.Get("/", s.handleListDatasets)
			r.Post("/", s.handleUploadDataset)
			r.Patch("/{id}", s.handleRenameDataset)
			r.Post("/{id}/reanalyze", s.handleReanalyzeDataset)
			r.Get("/{id}/details", s.handleDatasetDetails)
			r.Get("/{id}/eda", s.handleDatasetEDA)
			r.Delete("/{id}", s.handleDeleteDataset)
		})

		r.Route("/v1/workflows", func(r chi.Router) {
			r.Post("/", s.handleCreateWorkflow)
			r.Get("/", s.handleListWorkflows)
			r.Get("/{id}", s.handleGetWorkflow)
			r.Patch("/{id}", s.handleUpdateWorkflow)
			r.Patch("/{id}/config", s.handleUpdateWorkflowConfig)
			r.Post("/{id}/transition", s.handleTransitionWorkflow)
			r.Post("/{id}/run", s.handleRunWorkflow)
			r.Delete("/{id}", s.handleDeleteWorkflow)
		})
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// In-flight pipeline runs are drained before returning.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.orchestrator.Wait()
	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

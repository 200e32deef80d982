package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/modules/accounts"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/holdings"
	"github.com/aristath/rebalancer/internal/modules/prices"
	"github.com/aristath/rebalancer/internal/modules/rules"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Port      int
	Log       zerolog.Logger
	DB        *database.DB
	Scheduler *scheduler.Scheduler
	DevMode   bool

	Accounts   *accounts.Handler
	Holdings   *holdings.Handler
	Rules      *rules.Handler
	Allocation *allocation.Handler
	Prices     *prices.Handler
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	system *SystemHandlers
	cfg    Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		system: NewSystemHandlers(cfg.Log, cfg.DB, cfg.Scheduler),
		cfg:    cfg,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.cfg.Accounts.HandleList)
			r.Post("/", s.cfg.Accounts.HandleCreate)

			r.Route("/{accountID}", func(r chi.Router) {
				r.Get("/", s.cfg.Accounts.HandleGet)
				r.Put("/", s.cfg.Accounts.HandleUpdate)
				r.Delete("/", s.cfg.Accounts.HandleDelete)

				r.Route("/holdings", func(r chi.Router) {
					r.Get("/", s.cfg.Holdings.HandleList)
					r.Post("/", s.cfg.Holdings.HandleCreate)
					r.Post("/import", s.cfg.Holdings.HandleImport)
					r.Put("/{holdingID}", s.cfg.Holdings.HandleUpdate)
					r.Delete("/{holdingID}", s.cfg.Holdings.HandleDelete)
				})

				r.Route("/rules", func(r chi.Router) {
					r.Get("/", s.cfg.Rules.HandleGet)
					r.Put("/", s.cfg.Rules.HandlePut)
				})

				r.Route("/allocation", func(r chi.Router) {
					r.Post("/compute", s.cfg.Allocation.HandleCompute)
					r.Get("/drift", s.cfg.Allocation.HandleDrift)
				})
			})
		})

		r.Route("/holdings/{holdingID}", func(r chi.Router) {
			r.Get("/price", s.cfg.Prices.HandleGetPrice)
			r.Get("/prices", s.cfg.Prices.HandleGetHistory)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

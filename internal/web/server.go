// Package web serves spreadsheet tables as JSON over HTTP.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sheetjson/internal/config"
	"github.com/JonMunkholm/sheetjson/internal/core"
	"github.com/JonMunkholm/sheetjson/internal/history"
	"github.com/JonMunkholm/sheetjson/internal/logging"
	"github.com/JonMunkholm/sheetjson/internal/metrics"
	"github.com/JonMunkholm/sheetjson/internal/web/middleware"
)

// Server is the HTTP front end of a Retriever.
type Server struct {
	cfg       *config.Config
	retriever *core.Retriever
	history   *history.Store
	metrics   *metrics.Metrics

	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// Option configures optional collaborators of a Server.
type Option func(*Server)

// WithHistory records every fetch in store and serves /api/history.
func WithHistory(store *history.Store) Option {
	return func(s *Server) { s.history = store }
}

// WithMetrics counts built records and serves the metrics endpoint when
// enabled in the configuration.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds the router for r.
func NewServer(cfg *config.Config, r *core.Retriever, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		retriever: r,
		router:    chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))

		r.Get("/tables/{name}", s.handleTablePage)

		r.Route("/api", func(r chi.Router) {
			r.Get("/tables", s.handleListTables)
			r.Get("/tables/{name}", s.handleGetTable)
			r.Get("/history", s.handleHistory)

			if s.cfg.Rate.Enabled {
				r.With(s.newLimiter(s.cfg.Rate.BatchLimit).middleware).Get("/batch", s.handleBatch)
			} else {
				r.Get("/batch", s.handleBatch)
			}
		})
	})
}

func (s *Server) newLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	go rl.run()
	s.limiters = append(s.limiters, rl)
	return rl
}

// Router returns the router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	logging.FromContext(context.Background()).Info("server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then waits for in-flight requests and
// transport calls to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.Close()
	}
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if l := s.retriever.Limiter(); l != nil {
		return l.WaitForDrain(ctx)
	}
	return nil
}

// securityHeaders sets the headers every response carries.
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if csp {
				h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Package server exposes the distribution over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"distributor/internal/core"
	"distributor/internal/distributor"
	"distributor/internal/metrics"
	"distributor/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	defaultAddr      = ":8080"
	defaultRate      = rate.Limit(5)
	defaultBurst     = 20
	shutdownTimeout  = 10 * time.Second
	readWriteTimeout = 30 * time.Second
)

// Config wires a Server.
type Config struct {
	Logger      *slog.Logger
	Host        *core.Host
	Distributor *distributor.Client
	Token       *token.Client
	// Events backs GET /v1/events; nil disables the route.
	Events *core.MemorySink

	Addr string
	// InvokeRate and InvokeBurst bound state-changing requests per client IP.
	InvokeRate     rate.Limit
	InvokeBurst    int
	AllowedOrigins []string
}

// Validate checks required fields and applies defaults.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Host == nil {
		return errors.New("host is required")
	}
	if cfg.Distributor == nil {
		return errors.New("distributor client is required")
	}
	if cfg.Token == nil {
		return errors.New("token client is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.InvokeRate <= 0 {
		cfg.InvokeRate = defaultRate
	}
	if cfg.InvokeBurst <= 0 {
		cfg.InvokeBurst = defaultBurst
	}
	return nil
}

// Server is the HTTP front end.
type Server struct {
	log     *slog.Logger
	cfg     Config
	router  chi.Router
	limiter *rateLimiter
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		router:  chi.NewRouter(),
		limiter: newRateLimiter(cfg.InvokeRate, cfg.InvokeBurst),
	}
	s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", signerHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", handleOpenAPI)
		r.Get("/status", s.handleStatus)
		r.Get("/claims/{address}", s.handleClaim)
		r.Get("/balances/{address}", s.handleBalance)
		if s.cfg.Events != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.middleware)
			r.Post("/initialize", s.handleInitialize)
			r.Post("/distribution", s.handleSetDistribution)
			r.Post("/finalize", s.handleFinalize)
			r.Post("/admin", s.handleSetAdmin)
			r.Post("/claim", s.handlePostClaim)
			r.Post("/refund", s.handleRefund)
		})
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readWriteTimeout,
		ReadTimeout:       readWriteTimeout,
		WriteTimeout:      readWriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("server: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Package api exposes the agent over a JSON HTTP surface.
//
// Endpoints:
//
//	POST /api/v1/chat                    ask the agent a question
//	POST /api/v1/documents               upload a document for ingestion
//	GET  /api/v1/documents               list indexed documents
//	GET  /api/v1/threads                 list conversation threads
//	GET  /api/v1/threads/{id}/messages   replay one thread
//	GET  /healthz                        liveness probe
//	GET  /readyz                         readiness probe (pings the database)
//
// Health probes bypass the middleware stack so orchestrators are never
// rate limited.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds request header reads (Slowloris defense).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the keep-alive limit between requests.
	IdleTimeout = 120 * time.Second
)

// ReadinessProber is a dependency that can report whether it is usable.
type ReadinessProber interface {
	Ready(ctx context.Context) error
}

// ServerConfig contains the collaborators and settings for the server.
type ServerConfig struct {
	Logger     *slog.Logger
	Agent      QueryAgent      // Required
	Pipeline   Ingestor        // Required
	Index      DocumentLister  // Required
	Sessions   ThreadStore     // Required
	Pool       *pgxpool.Pool   // Optional: adds the database readiness probe
	Blobs      ReadinessProber // Optional: adds the blob store readiness probe
	TrustProxy bool            // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int             // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	trustProxy bool
	rateBurst  int
}

// NewServer creates a server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("ingestion pipeline is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("document index is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	NewChatHandler(cfg.Agent, logger).RegisterRoutes(mux)
	NewDocumentsHandler(cfg.Pipeline, cfg.Index, logger).RegisterRoutes(mux)
	NewThreadsHandler(cfg.Sessions, logger).RegisterRoutes(mux)

	var checks []ReadyCheck
	if cfg.Pool != nil {
		checks = append(checks, ReadyCheck{Name: "database", Probe: cfg.Pool.Ping})
	}
	if cfg.Blobs != nil {
		checks = append(checks, ReadyCheck{Name: "blob_store", Probe: cfg.Blobs.Ready})
	}
	NewHealthHandler(logger, checks...).RegisterRoutes(mux)

	return &Server{
		mux:        mux,
		logger:     logger,
		trustProxy: cfg.TrustProxy,
		rateBurst:  cfg.RateBurst,
	}, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order (outermost first): recovery, logging, rate limit.
func (s *Server) Handler() http.Handler {
	burst := s.rateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	stack := chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		rateLimitMiddleware(rl, s.trustProxy, s.logger),
	)

	// Health probes skip logging and rate limiting.
	top := http.NewServeMux()
	top.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.mux.ServeHTTP(w, r)
	})
	top.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		s.mux.ServeHTTP(w, r)
	})
	top.Handle("/", stack)
	return top
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Package api exposes the knowledge base over HTTP REST.
//
// Endpoints:
//
//	GET    /health                     liveness probe
//	GET    /ready                      readiness probe (pings the database)
//	POST   /api/kb/search              semantic search with HyDE expansion
//	GET    /api/kb/entries             list entries (filters + pagination)
//	POST   /api/kb/entries             create an entry
//	GET    /api/kb/entries/{id}        fetch one entry
//	PUT    /api/kb/entries/{id}        update an entry
//	PATCH  /api/kb/entries/{id}/toggle set active flag
//	DELETE /api/kb/entries/{id}        delete an entry
//	GET    /api/kb/categories          list query categories
//	POST   /api/kb/import              bulk import drafts
//	POST   /api/kb/sync/{source}       reconcile a source feed
//	POST   /api/kb/reembed             regenerate vectors
//	POST   /api/kb/normalize           LLM chunking of raw text
//	POST   /api/kb/parse-file          spreadsheet/CSV to sections
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging and panic recovery
//   - health.go: probes
//   - knowledge.go: entry CRUD, search, import, sync
//   - normalize.go: document ingestion helpers
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to prevent Slowloris attacks.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Search requests may wait on two embedding calls and one generation.
	WriteTimeout = 60 * time.Second

	// IdleTimeout applies to keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the knowledge base REST API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	health    *HealthHandler
	knowledge *KnowledgeHandler
	normalize *NormalizeHandler
}

// NewServer creates a server with all routes registered.
// logger may be nil (defaults to slog.Default()).
func NewServer(svc KnowledgeService, normalizer Normalizer, pinger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    NewHealthHandler(pinger, logger),
		knowledge: NewKnowledgeHandler(svc, logger),
		normalize: NewNormalizeHandler(normalizer, logger),
	}

	s.health.RegisterRoutes(mux)
	s.knowledge.RegisterRoutes(mux)
	s.normalize.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, then logging, then the mux.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
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
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

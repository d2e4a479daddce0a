// Package server exposes the fable RAG pipeline over HTTP: generation,
// search, fable lookup, model listing, health, and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fablerag/fablerag/internal/config"
	"github.com/fablerag/fablerag/internal/rag"
)

// FableStore is the slice of the vector store the HTTP layer needs
// beyond retrieval: direct lookup and the health count.
type FableStore interface {
	Get(ctx context.Context, id int64) (*rag.Passage, error)
	Count(ctx context.Context) (int64, error)
}

// Server wires handlers, middleware, and the orchestrator.
type Server struct {
	cfg    *config.Config
	rag    *rag.Orchestrator
	store  FableStore
	logger *zap.Logger
}

// New creates a server over an assembled pipeline.
func New(cfg *config.Config, orchestrator *rag.Orchestrator, store FableStore, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, rag: orchestrator, store: store, logger: logger}
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/fables/{id:[0-9]+}", s.handleFable).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	h = metrics(h)
	h = logging(s.logger)(h)
	h = requestID(h)
	return h
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No overall write timeout: generation legitimately runs for
		// the backend's full 60s budget.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

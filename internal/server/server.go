// Package server provides the HTTP API for Bunmyaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/config"
	"github.com/hyperjump/bunmyaku/internal/engine"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/internal/token"
)

// Server is the HTTP server for the Bunmyaku API.
type Server struct {
	engine   *engine.Engine
	messages storage.MessageStore
	counter  token.Counter
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. counter measures
// the token size reported alongside assembled contexts and should be the
// same counter the assembler budgets with.
func NewServer(
	eng *engine.Engine,
	messages storage.MessageStore,
	counter token.Counter,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   eng,
		messages: messages,
		counter:  counter,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the API router. Exposed so tests can drive it directly.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/conversations/{id}/messages", s.handleAppendMessages)
	r.Delete("/api/v1/conversations/{id}", s.handleRemoveConversation)
	r.Get("/api/v1/conversations", s.handleListConversations)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/context", s.handleContext)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/index/validate", s.handleValidate)
	r.Post("/api/v1/index/recover", s.handleRecover)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

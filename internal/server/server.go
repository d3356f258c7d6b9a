// Package server implements the HTTP backend that persists uploaded rows.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"

	"github.com/verte-zerg/seqrecall/internal/mirror"
	"github.com/verte-zerg/seqrecall/internal/model"
)

// MaxBodyBytes caps the accepted request body.
const MaxBodyBytes = 10 << 20

// Server serves the save endpoint.
type Server struct {
	cfg     model.ServerConfig
	logger  *slog.Logger
	mirrors []mirror.Mirror
	router  chi.Router
}

// New builds a server with its routes mounted.
func New(cfg model.ServerConfig, logger *slog.Logger, mirrors []mirror.Mirror) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{cfg: cfg, logger: logger, mirrors: mirrors, router: chi.NewRouter()}
	s.setupRoutes()
	return s
}

// Mirrors builds the mirrors enabled by cfg.
func Mirrors(cfg model.ServerConfig) []mirror.Mirror {
	var out []mirror.Mirror
	if cfg.GitHub.Enabled() {
		out = append(out, mirror.NewGitHub(cfg.GitHub, "", nil))
	}
	if cfg.SMTP.Enabled() {
		out = append(out, mirror.NewEmail(cfg.SMTP, nil))
	}
	return out
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Post("/save-data", s.handleSaveData)

	if s.cfg.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

// Run listens on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr, "data_dir", s.cfg.DataDir, "mirrors", len(s.mirrors))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

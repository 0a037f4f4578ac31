package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps the HTTP listener serving the analysis API.
type Server struct {
	logger          *slog.Logger
	httpServer      *http.Server
	gracefulTimeout time.Duration
}

// NewServer builds the API server around the given handler.
func NewServer(logger *slog.Logger, address string, handler http.Handler, gracefulTimeout time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gracefulTimeout <= 0 {
		gracefulTimeout = 10 * time.Second
	}
	return &Server{
		logger: logger,
		httpServer: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		gracefulTimeout: gracefulTimeout,
	}
}

// Start serves until the listener fails or Shutdown is called. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("api server listening", slog.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the graceful timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.gracefulTimeout)
	defer cancel()
	s.logger.Info("api server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

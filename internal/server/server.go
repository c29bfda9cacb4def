package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/atelier/internal/app"
)

// Server wraps the HTTP server and routes
type Server struct {
	app        *app.App
	httpServer *http.Server
}

// New creates a server for the application container
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	mux := s.setupRoutes()
	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withConditionalMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("HTTP server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

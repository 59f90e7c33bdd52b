// Package server provides the HTTP server for posebake.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/posebake/internal/app"
	"github.com/ayusman/posebake/internal/capture"
	"github.com/ayusman/posebake/internal/logging"
	"github.com/ayusman/posebake/internal/server/api"
	"github.com/ayusman/posebake/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	// NewConverter enables the conversion API when set.
	NewConverter api.ConverterFactory
	// NewSource enables the video preview endpoint when set.
	NewSource func() capture.Source
	SampleFPS float64
	Logger    *slog.Logger
}

// Server represents the HTTP server for the posebake application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	start   time.Time
	hub     *ProgressHub
	convert *api.ConvertHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		hub:    NewProgressHub(config.Logger),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/progress", s.hub)

	if s.config.Store != nil {
		clips := api.NewClipHandler(s.config.Store)
		s.mux.Handle("/api/clips", clips)
		s.mux.Handle("/api/clips/", clips)
	}

	if s.config.NewConverter != nil {
		s.convert = api.NewConvertHandler(s.config.NewConverter, s.hub.Publish, s.config.Logger)
		s.mux.Handle("/api/convert", s.convert)
		s.mux.Handle("/api/jobs", s.convert)
		s.mux.Handle("/api/jobs/", s.convert)
	}

	if s.config.NewSource != nil {
		fps := s.config.SampleFPS
		if fps <= 0 {
			fps = app.DefaultOptions().SampleFPS
		}
		s.mux.Handle("/api/preview", NewPreviewHandler(s.config.NewSource, fps))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Hub returns the progress broadcaster.
func (s *Server) Hub() *ProgressHub {
	return s.hub
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status":  "ok",
		"uptime":  uptime.String(),
		"convert": s.convert != nil,
		"clients": s.hub.Clients(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and stops running conversion jobs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops running conversion jobs.
func (s *Server) Close() error {
	if s.convert != nil {
		return s.convert.Close()
	}
	return nil
}

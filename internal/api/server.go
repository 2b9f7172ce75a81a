// Package api exposes the race state and the control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lanerace/racecontrol/internal/config"
	"github.com/lanerace/racecontrol/internal/race"
)

// SnapshotSource provides the latest published race state
type SnapshotSource interface {
	Snapshot() race.Snapshot
}

// Submitter accepts control lines
type Submitter interface {
	Submit(line string) error
}

// Server is the HTTP API
type Server struct {
	config    config.APIConfig
	source    SnapshotSource
	submitter Submitter
	registry  *Registry
	logger    zerolog.Logger
	router    chi.Router
	http      *http.Server
}

// NewServer builds the router and registers the race methods
func NewServer(cfg config.APIConfig, source SnapshotSource, submitter Submitter, logger zerolog.Logger) *Server {
	s := &Server{
		config:    cfg,
		source:    source,
		submitter: submitter,
		registry:  NewRegistry(),
		logger:    logger.With().Str("component", "api").Logger(),
	}
	s.registerRaceMethods()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealth)
	r.Post("/rpc", s.handleRPC)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rpc" {
			s.handleNotPost(w, r)
			return
		}
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	s.router = r
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the method registry so callers can add methods
func (s *Server) Registry() *Registry {
	return s.registry
}

// ListenAndServe serves on the configured port until Shutdown
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on listener until Shutdown
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("api server listening")
	if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Snapshot()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode status")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// requestLogger logs one line per request once it completes
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the ops HTTP endpoints of the relay daemon: liveness,
// readiness, Prometheus metrics and a read-only relay status.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrelay/internal/api/middleware"
	"github.com/ManuGH/streamrelay/internal/health"
	"github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/ManuGH/streamrelay/internal/resource"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

// StatusSource exposes the supervisor status.
type StatusSource interface {
	Snapshot() relay.Status
}

// Config configures the ops server.
type Config struct {
	ListenAddr         string
	RateLimitPerMinute int
	TracingService     string
	ShutdownTimeout    time.Duration
}

// Server is the ops HTTP server.
type Server struct {
	cfg     Config
	health  *health.Manager
	status  StatusSource
	profile resource.EncodingProfile
	version string
	router  chi.Router
	logger  zerolog.Logger
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	State          string     `json:"state"`
	Channel        string     `json:"channel"`
	SessionID      string     `json:"session_id,omitempty"`
	SessionStarted *time.Time `json:"session_started_at,omitempty"`
	Variant        string     `json:"variant,omitempty"`
	RestartCount   int        `json:"restart_count"`
	UptimeSeconds  float64    `json:"uptime_seconds"`
	LastError      string     `json:"last_error,omitempty"`
	Transitions    int        `json:"transitions"`
	Version        string     `json:"version"`
}

// ProfileResponse is the body of GET /api/v1/profile.
type ProfileResponse struct {
	Encoder     string `json:"encoder"`
	Codec       string `json:"codec"`
	CPUThreads  int    `json:"cpu_threads"`
	BufferBytes int    `json:"buffer_bytes"`
	Constrained bool   `json:"constrained"`
	MemoryBytes uint64 `json:"memory_bytes"`
}

// New creates the ops server and its routes.
func New(cfg Config, hm *health.Manager, status StatusSource, profile resource.EncodingProfile, version string) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		health:  hm,
		status:  status,
		profile: profile,
		version: version,
		logger:  log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Probes and metrics stay outside the rate limiter.
	r.Group(func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{})
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{
			EnableSecurityHeaders: true,
			EnableMetrics:         true,
			TracingService:        s.cfg.TracingService,
			EnableLogging:         true,
			RateLimitPerMinute:    s.cfg.RateLimitPerMinute,
		})
		r.Get("/status", s.handleStatus)
		r.Get("/profile", s.handleProfile)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Snapshot()
	middleware.AddSpanAttributes(r, telemetry.SessionAttributes(st.Channel, st.SessionID)...)
	s.writeJSON(w, http.StatusOK, StatusResponse{
		State:          string(st.State),
		Channel:        st.Channel,
		SessionID:      st.SessionID,
		SessionStarted: st.SessionStart,
		Variant:        st.Variant,
		RestartCount:   st.RestartCount,
		UptimeSeconds:  st.Uptime.Seconds(),
		LastError:      st.LastError,
		Transitions:    st.Transitions,
		Version:        s.version,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request) {
	p := s.profile
	s.writeJSON(w, http.StatusOK, ProfileResponse{
		Encoder:     string(p.PreferredEncoder),
		Codec:       p.PreferredEncoder.Codec(),
		CPUThreads:  p.CPUThreads,
		BufferBytes: p.BufferSizeBytes,
		Constrained: p.Constrained,
		MemoryBytes: p.MemoryBytes,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("ops server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("ops server stopped")
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health serves the liveness and readiness probes of the relay
// daemon and runs the startup preflight.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamrelay/internal/log"
)

// Status is the aggregated state of a probe or a single check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity orders statuses so the worst one wins when aggregating.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// CheckResult is the outcome of one Checker.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the /readyz body.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one component probed by the Manager.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// checkTimeout bounds a single Checker so a hung probe cannot stall the
// HTTP handler.
const checkTimeout = 2 * time.Second

// Manager runs registered checkers for the probe endpoints.
type Manager struct {
	version string
	started time.Time

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager returns a Manager reporting version in /healthz.
func NewManager(version string) *Manager {
	return &Manager{version: version, started: time.Now()}
}

// RegisterChecker adds c. Checkers with the same name overwrite each
// other's result.
func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	m.checkers = append(m.checkers, c)
	m.mu.Unlock()
}

// runChecks executes every checker concurrently and returns the results
// with the worst status seen.
func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			results[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	byName := make(map[string]CheckResult, len(checkers))
	for i, c := range checkers {
		byName[c.Name()] = results[i]
		if results[i].Status.severity() > overall.severity() {
			overall = results[i].Status
		}
	}
	return byName, overall
}

// Health answers the liveness probe. The process is considered alive as
// long as it can answer; component checks only run when verbose is set and
// then only colour the reported status.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.started).Seconds()),
		Timestamp: time.Now(),
	}
	if verbose {
		if checks, status := m.runChecks(ctx); len(checks) > 0 {
			resp.Checks, resp.Status = checks, status
		}
	}
	return resp
}

// Ready answers the readiness probe. Any unhealthy check makes the daemon
// not ready; degraded checks keep it ready. Results are always included.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{Ready: true, Status: StatusHealthy, Timestamp: time.Now()}
	checks, status := m.runChecks(ctx)
	if len(checks) == 0 {
		return resp
	}
	resp.Checks, resp.Status = checks, status
	resp.Ready = status != StatusUnhealthy
	return resp
}

// ServeHealth always answers 200. Pass ?verbose=true for component results.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	logProbe(r, "health", http.StatusOK, resp.Status)
	writeJSON(w, r, "health", http.StatusOK, resp)
}

// ServeReady answers 200 when ready and 503 otherwise.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	logProbe(r, "readiness", code, resp.Status)
	writeJSON(w, r, "readiness", code, resp)
}

func logProbe(r *http.Request, component string, code int, status Status) {
	logger := log.WithComponentFromContext(r.Context(), component)
	logger.Debug().
		Str("event", component+".checked").
		Str("status", string(status)).
		Int("code", code).
		Msg("probe answered")
}

func writeJSON(w http.ResponseWriter, r *http.Request, component string, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), component)
		logger.Error().Err(err).Str("event", component+".encode_error").Msg("failed to encode probe response")
	}
}

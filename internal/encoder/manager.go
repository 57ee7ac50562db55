// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package encoder owns the lifecycle of the ffmpeg process that pushes the
// source stream to the ingest endpoint. At most one process is tracked at a
// time; callers interact with it only through a Handle.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/ManuGH/streamrelay/internal/procgroup"
	"github.com/ManuGH/streamrelay/internal/resource"
	"github.com/ManuGH/streamrelay/internal/stream"
)

// State of a managed process.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
)

const (
	defaultGracePeriod = 10 * time.Second
	defaultKillTimeout = 5 * time.Second
	defaultRingLines   = 256
)

// Config configures a Manager.
type Config struct {
	// Binary is the encoder executable, resolved through PATH.
	Binary string
	// GracePeriod is how long a graceful stop waits before SIGKILL.
	GracePeriod time.Duration
	// KillTimeout bounds the wait after SIGKILL.
	KillTimeout time.Duration
	// RingLines is the number of stderr lines kept per process.
	RingLines int
}

// ExitStatus describes how a process ended.
type ExitStatus struct {
	Code      int       `json:"code"`
	Reason    string    `json:"reason"` // clean|crash|stopped
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Handle refers to one encoder process.
type Handle struct {
	id        string
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	ring      *lineRing

	mu       sync.Mutex
	state    State
	stopping bool
	exit     *ExitStatus
}

// ID is a unique identifier for log correlation.
func (h *Handle) ID() string { return h.id }

// PID of the process, 0 if it never started.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// State returns the lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Exit returns the exit status once the process has ended.
func (h *Handle) Exit() (ExitStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exit == nil {
		return ExitStatus{}, false
	}
	return *h.exit, true
}

// Diagnostics returns up to n of the last stderr lines, oldest first.
func (h *Handle) Diagnostics(n int) []string {
	if h == nil || h.ring == nil {
		return nil
	}
	return h.ring.lastN(n)
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Manager starts and stops encoder processes, refusing to run two at once.
type Manager struct {
	binary   string
	grace    time.Duration
	killWait time.Duration
	ringSize int
	now      func() time.Time
	logger   zerolog.Logger

	mu     sync.Mutex
	active *Handle
}

// NewManager creates a Manager. Zero durations fall back to defaults.
func NewManager(cfg Config) *Manager {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = defaultKillTimeout
	}
	if cfg.RingLines <= 0 {
		cfg.RingLines = defaultRingLines
	}
	return &Manager{
		binary:   cfg.Binary,
		grace:    cfg.GracePeriod,
		killWait: cfg.KillTimeout,
		ringSize: cfg.RingLines,
		now:      time.Now,
		logger:   log.WithComponent("encoder"),
	}
}

// Start spawns a new encoder process relaying variant to destination.
// It fails with a *LaunchError wrapping ErrAlreadyRunning if a process is
// still running; the running process is left untouched.
func (m *Manager) Start(ctx context.Context, variant stream.Variant, profile resource.EncodingProfile, destination string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.active; prev != nil {
		if isAlive(prev) {
			metrics.IncEncoderStart("rejected")
			return nil, &LaunchError{Binary: m.binary, Err: ErrAlreadyRunning}
		}
		// Exited on its own and nobody called Stop; it is confirmed gone.
		prev.setState(StateIdle)
		m.active = nil
	}

	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Binary: m.binary, Err: err}
	}

	path, err := exec.LookPath(m.binary)
	if err != nil {
		metrics.IncEncoderStart("error")
		return nil, &LaunchError{Binary: m.binary, Err: fmt.Errorf("%w: %v", ErrBinaryNotFound, err)}
	}

	args, err := BuildArgs(variant, profile, destination)
	if err != nil {
		metrics.IncEncoderStart("error")
		return nil, &LaunchError{Binary: m.binary, Err: err}
	}

	// Not CommandContext: the process outlives the start request and is
	// only ever terminated through Stop.
	cmd := exec.Command(path, args...) // #nosec G204 -- binary from config, args built above
	procgroup.Set(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		metrics.IncEncoderStart("error")
		return nil, &LaunchError{Binary: m.binary, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	h := &Handle{
		id:    uuid.NewString(),
		cmd:   cmd,
		done:  make(chan struct{}),
		ring:  newLineRing(m.ringSize),
		state: StateStarting,
	}

	if err := cmd.Start(); err != nil {
		metrics.IncEncoderStart("error")
		return nil, &LaunchError{Binary: m.binary, Err: err}
	}
	h.startedAt = m.now()
	h.setState(StateRunning)
	m.active = h

	go m.reap(h, stderr)

	metrics.IncEncoderStart("ok")
	metrics.SetEncoderRunning(true)
	logger := log.WithContext(ctx, m.logger)
	logger.Info().
		Str("event", "encoder.started").
		Int(log.FieldPID, h.PID()).
		Str("handle", h.id).
		Str(log.FieldVariant, variant.Label).
		Str(log.FieldEncoder, profile.PreferredEncoder.Codec()).
		Bool("constrained", profile.Constrained).
		Str(log.FieldDestination, MaskDestination(destination)).
		Msg("encoder process started")
	return h, nil
}

// reap drains stderr, waits for the process and records its exit.
func (m *Manager) reap(h *Handle, stderr io.Reader) {
	h.ring.consume(stderr)
	waitErr := h.cmd.Wait()

	code := 0
	if waitErr != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	h.mu.Lock()
	reason := "crash"
	switch {
	case h.stopping:
		reason = "stopped"
	case code == 0:
		reason = "clean"
	}
	h.exit = &ExitStatus{Code: code, Reason: reason, StartedAt: h.startedAt, EndedAt: m.now()}
	if !h.stopping {
		// Nobody asked it to stop: from the manager's view it crashed,
		// whatever the exit code.
		h.state = StateCrashed
	}
	h.mu.Unlock()
	close(h.done)

	metrics.IncEncoderExit(reason)
	evt := m.logger.Info()
	if reason == "crash" {
		evt = m.logger.Warn()
	}
	evt.Str("event", "encoder.exited").
		Int(log.FieldPID, h.PID()).
		Str("handle", h.id).
		Int(log.FieldExitCode, code).
		Str(log.FieldReason, reason).
		Msg("encoder process exited")
}

// IsAlive reports whether the process behind h is still running. It never
// blocks.
func (m *Manager) IsAlive(h *Handle) bool {
	return isAlive(h)
}

func isAlive(h *Handle) bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ElapsedRuntime is how long the process has been (or was) running.
func (m *Manager) ElapsedRuntime(h *Handle) time.Duration {
	if h == nil || h.startedAt.IsZero() {
		return 0
	}
	if st, ok := h.Exit(); ok {
		return st.EndedAt.Sub(st.StartedAt)
	}
	return m.now().Sub(h.startedAt)
}

// Stop terminates the process behind h. A graceful stop sends SIGTERM and
// waits up to the grace period before SIGKILL; otherwise the group is killed
// at once. On return h is idle and no longer tracked, even if the kill could
// not be confirmed (the error then says so).
func (m *Manager) Stop(ctx context.Context, h *Handle, graceful bool) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.State() == StateIdle {
		return nil
	}

	h.mu.Lock()
	h.stopping = true
	h.state = StateStopping
	h.mu.Unlock()

	grace := time.Duration(0)
	if graceful {
		grace = m.grace
	}
	err := procgroup.Terminate(ctx, h.cmd, h.done, grace, m.killWait)

	h.setState(StateIdle)
	if m.active == h {
		m.active = nil
		metrics.SetEncoderRunning(false)
	}

	m.logger.Debug().
		Int(log.FieldPID, h.PID()).
		Str("handle", h.id).
		Bool("graceful", graceful).
		Err(err).
		Msg("encoder stop completed")

	if err != nil {
		return fmt.Errorf("stop encoder pid %d: %w", h.PID(), err)
	}
	return nil
}

// MaskDestination hides the stream key (last path element) of an ingest URL.
func MaskDestination(dest string) string {
	u, err := url.Parse(dest)
	if err != nil || u.Host == "" {
		return "invalid-url-redacted"
	}
	u.User = nil
	u.RawQuery = ""
	if i := strings.LastIndex(u.Path, "/"); i >= 0 && i < len(u.Path)-1 {
		u.Path = u.Path[:i+1] + "****"
	}
	return u.String()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Supervisor is the relay loop. Run returns nil when ctx is cancelled and
// an error only for fatal conditions.
type Supervisor interface {
	Run(ctx context.Context) error
}

// OpsServer serves the ops HTTP endpoints until ctx is done.
type OpsServer interface {
	ListenAndServe(ctx context.Context) error
}

// Deps contains the components owned by the Manager.
type Deps struct {
	Logger     zerolog.Logger
	Supervisor Supervisor
	// Server is optional; nil disables the ops endpoints.
	Server OpsServer
	// ShutdownTimeout bounds the shutdown hooks.
	ShutdownTimeout time.Duration
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Supervisor == nil {
		return ErrMissingSupervisor
	}
	return nil
}

// Manager runs the supervisor and the ops server side by side: when either
// stops, the other is cancelled, then shutdown hooks run.
type Manager struct {
	deps Deps

	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

// namedHook represents a shutdown hook with a name for logging
type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager.
func NewManager(deps Deps) (*Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = 30 * time.Second
	}
	return &Manager{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "manager").Logger(),
	}, nil
}

// Start runs all components and blocks until ctx is cancelled or one of
// them fails. The supervisor's fatal error is returned as is so callers can
// match it with errors.Is.
func (m *Manager) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().Bool("ops_server", m.deps.Server != nil).Msg("starting daemon manager")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// A clean supervisor exit still ends the process.
		defer cancel()
		return m.deps.Supervisor.Run(gctx)
	})

	if m.deps.Server != nil {
		g.Go(func() error {
			if err := m.deps.Server.ListenAndServe(gctx); err != nil {
				m.logger.Error().Err(err).Str("event", "api.server.failed").Msg("ops server failed")
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}

	runErr := g.Wait()
	if runErr != nil {
		m.logger.Error().Err(runErr).Msg("component failed, shutting down")
	} else {
		m.logger.Info().Msg("shutdown signal received")
	}

	// Detached so hooks still run after the parent was cancelled.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), m.deps.ShutdownTimeout)
	defer cancelShutdown()
	if err := m.Shutdown(shutdownCtx); err != nil {
		if runErr != nil {
			return errors.Join(runErr, err)
		}
		return err
	}
	return runErr
}

// Shutdown executes the registered hooks. It is safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	var errs []error
	m.logger.Debug().Int("hooks", len(hooks)).Msg("executing shutdown hooks")
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(ctx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", hook.name).
			Dur("duration", time.Since(hookStart)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHooks = append(m.shutdownHooks, namedHook{
		name: name,
		hook: hook,
	})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package relay implements the supervisor that keeps a channel relayed for as
// long as it is live: it starts the encoder when the channel comes online,
// restarts it after crashes, rotates it before the ingest runtime ceiling and
// upgrades it when a better variant appears.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/ManuGH/streamrelay/internal/provider"
	"github.com/ManuGH/streamrelay/internal/resource"
	"github.com/ManuGH/streamrelay/internal/stream"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

// Encoder is the subset of the encoder manager the supervisor drives.
type Encoder interface {
	Start(ctx context.Context, variant stream.Variant, profile resource.EncodingProfile, destination string) (*encoder.Handle, error)
	IsAlive(h *encoder.Handle) bool
	ElapsedRuntime(h *encoder.Handle) time.Duration
	Stop(ctx context.Context, h *encoder.Handle, graceful bool) error
}

// Config configures a Supervisor. Zero values fall back to defaults.
type Config struct {
	Channel     stream.ChannelID
	Destination string
	Profile     resource.EncodingProfile

	PollInterval        time.Duration
	OfflinePollInterval time.Duration
	MaxRuntime          time.Duration

	StormThreshold      int
	StormWindow         time.Duration
	StormBackoffInitial time.Duration
	StormBackoffMax     time.Duration

	ProviderBackoffInitial time.Duration
	ProviderBackoffMax     time.Duration

	MaxLaunchAttempts int
	LaunchBackoff     time.Duration

	// StopTimeout bounds the final encoder stop during shutdown.
	StopTimeout time.Duration
}

const (
	DefaultPollInterval        = 30 * time.Second
	DefaultOfflinePollInterval = 15 * time.Second
	DefaultMaxRuntime          = 10*time.Hour + 30*time.Minute
	DefaultStormThreshold      = 3
	DefaultStormWindow         = 5 * time.Minute
	DefaultStormBackoffInitial = 5 * time.Second
	DefaultStormBackoffMax     = 5 * time.Minute
	DefaultMaxLaunchAttempts   = 3
	DefaultLaunchBackoff       = 2 * time.Second
	DefaultStopTimeout         = 20 * time.Second
)

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.OfflinePollInterval <= 0 {
		c.OfflinePollInterval = DefaultOfflinePollInterval
	}
	if c.MaxRuntime <= 0 {
		c.MaxRuntime = DefaultMaxRuntime
	}
	if c.StormThreshold <= 0 {
		c.StormThreshold = DefaultStormThreshold
	}
	if c.StormWindow <= 0 {
		c.StormWindow = DefaultStormWindow
	}
	if c.StormBackoffInitial <= 0 {
		c.StormBackoffInitial = DefaultStormBackoffInitial
	}
	if c.StormBackoffMax <= 0 {
		c.StormBackoffMax = DefaultStormBackoffMax
	}
	if c.ProviderBackoffInitial <= 0 {
		c.ProviderBackoffInitial = 5 * time.Second
	}
	if c.ProviderBackoffMax <= 0 {
		c.ProviderBackoffMax = 2 * time.Minute
	}
	if c.MaxLaunchAttempts <= 0 {
		c.MaxLaunchAttempts = DefaultMaxLaunchAttempts
	}
	if c.LaunchBackoff <= 0 {
		c.LaunchBackoff = DefaultLaunchBackoff
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// Supervisor is the relay state machine. Run drives it; Tick performs a
// single step and is exported for callers that want to drive it themselves.
type Supervisor struct {
	cfg      Config
	provider provider.Provider
	encoder  Encoder
	clock    clock
	tracer   trace.Tracer
	logger   zerolog.Logger

	guard           *stormGuard
	providerBackoff *backoff.ExponentialBackOff
	providerLog     rate.Sometimes

	// Control-loop state; only touched by the goroutine calling Tick.
	sess       *session
	span       trace.Span
	lastOnline bool

	// mu guards the fields read by Snapshot.
	mu          sync.RWMutex
	state       State
	status      Status
	transitions int
	active      *encoder.Handle
}

// New creates a Supervisor in WAITING_FOR_LIVE.
func New(cfg Config, p provider.Provider, enc Encoder) *Supervisor {
	cfg = cfg.withDefaults()

	pb := backoff.NewExponentialBackOff()
	pb.InitialInterval = cfg.ProviderBackoffInitial
	pb.MaxInterval = cfg.ProviderBackoffMax
	pb.Multiplier = 2
	pb.RandomizationFactor = 0
	pb.Reset()

	s := &Supervisor{
		cfg:             cfg,
		provider:        p,
		encoder:         enc,
		clock:           realClock{},
		tracer:          telemetry.Tracer("streamrelay/relay"),
		logger:          log.WithComponent("relay").With().Str(log.FieldChannel, string(cfg.Channel)).Logger(),
		guard:           newStormGuard(cfg.StormThreshold, cfg.StormWindow, cfg.StormBackoffInitial, cfg.StormBackoffMax),
		providerBackoff: pb,
		providerLog:     rate.Sometimes{First: 3, Interval: time.Minute},
		state:           StateWaitingForLive,
	}
	s.status = Status{State: StateWaitingForLive, Channel: string(cfg.Channel)}
	metrics.SetRelayState(string(StateWaitingForLive), allStates)
	return s
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns a consistent copy of the supervisor status.
func (s *Supervisor) Snapshot() Status {
	s.mu.RLock()
	st := s.status
	st.State = s.state
	st.Transitions = s.transitions
	active := s.active
	s.mu.RUnlock()
	if active != nil {
		st.Uptime = s.encoder.ElapsedRuntime(active)
	}
	if st.SessionStart != nil {
		t := *st.SessionStart
		st.SessionStart = &t
	}
	return st
}

// Run drives the state machine until ctx is cancelled or a fatal error
// occurs. In both cases the active encoder is stopped gracefully before Run
// returns. A cancelled context is not an error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info().
		Str(log.FieldEncoder, s.cfg.Profile.PreferredEncoder.Codec()).
		Bool("constrained", s.cfg.Profile.Constrained).
		Dur("max_runtime", s.cfg.MaxRuntime).
		Msg("relay supervisor started")

	for {
		wait, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.Shutdown()
				return nil
			}
			s.logger.Error().Err(err).Str(log.FieldState, string(s.State())).Msg("relay supervisor failed")
			s.Shutdown()
			return err
		}

		select {
		case <-ctx.Done():
			s.Shutdown()
			return nil
		case <-s.clock.After(wait):
		}
	}
}

// Tick performs one step of the state machine and returns how long to wait
// before the next one. A non-nil error is fatal unless ctx was cancelled.
func (s *Supervisor) Tick(ctx context.Context) (time.Duration, error) {
	st := s.State()
	if st.Terminal() {
		return 0, errors.New("supervisor is shut down")
	}
	switch st {
	case StateWaitingForLive:
		return s.tickWaiting(ctx)
	case StateRelaying:
		return s.tickRelaying(ctx)
	default:
		// UPGRADING and RESTARTING complete within the tick that entered them.
		return 0, fmt.Errorf("tick in transient state %s", st)
	}
}

func (s *Supervisor) tickWaiting(ctx context.Context) (time.Duration, error) {
	live, err := s.provider.CheckLive(ctx, s.cfg.Channel)
	if err != nil {
		return s.providerFailure(ctx, "check_live", err)
	}
	s.providerBackoff.Reset()

	if live != provider.Online {
		if s.lastOnline {
			s.logger.Info().Msg("channel offline, waiting")
		}
		s.lastOnline = false
		return s.cfg.OfflinePollInterval, nil
	}

	variants, err := s.provider.ListVariants(ctx, s.cfg.Channel)
	if err != nil {
		return s.providerFailure(ctx, "list_variants", err)
	}
	best, ok := stream.PickBest(variants)
	if !ok {
		s.logger.Warn().Int("variants", len(variants)).Msg("channel online but no usable video variant")
		return s.cfg.OfflinePollInterval, nil
	}
	if !s.lastOnline {
		s.logger.Info().Str(log.FieldVariant, best.Label).Msg("channel online")
	}
	s.lastOnline = true

	s.beginSession(ctx, best)
	h, err := s.launch(ctx, best)
	if err != nil {
		s.endSession(err)
		return 0, err
	}
	s.setHandle(h)
	s.transition(StateRelaying, reasonOnline)
	return s.cfg.PollInterval, nil
}

func (s *Supervisor) tickRelaying(ctx context.Context) (time.Duration, error) {
	sess := s.sess

	live, err := s.provider.CheckLive(ctx, s.cfg.Channel)
	if err != nil {
		return s.providerFailure(ctx, "check_live", err)
	}
	s.providerBackoff.Reset()

	if live != provider.Online {
		s.logger.Info().Str(log.FieldSessionID, sess.id).Msg("channel went offline, stopping relay")
		s.stopActive(ctx, true)
		s.lastOnline = false
		s.transition(StateWaitingForLive, reasonOffline)
		s.endSession(nil)
		return s.cfg.OfflinePollInterval, nil
	}

	// Restarts relaunch from this listing, never from the stored session URL.
	variants, err := s.provider.ListVariants(ctx, s.cfg.Channel)
	if err != nil {
		return s.providerFailure(ctx, "list_variants", err)
	}

	if !s.encoder.IsAlive(sess.handle) {
		s.logCrash(sess)
		s.recordError(ErrUnexpectedTermination)
		s.transition(StateRestarting, reasonCrash)
		return s.restart(ctx, s.current(variants), false, reasonCrash)
	}

	if s.encoder.ElapsedRuntime(sess.handle) >= s.cfg.MaxRuntime {
		s.transition(StateRestarting, reasonRotation)
		return s.restart(ctx, s.current(variants), true, reasonRotation)
	}

	if best, ok := stream.PickBest(variants); ok && stream.IsUpgrade(sess.variant, best) {
		s.logger.Info().
			Str(log.FieldSessionID, sess.id).
			Str("from", sess.variant.Label).
			Str("to", best.Label).
			Msg("better variant available")
		s.transition(StateUpgrading, reasonUpgrade)
		return s.restart(ctx, best, true, reasonUpgrade)
	}

	return s.cfg.PollInterval, nil
}

// current resolves the session variant against a fresh listing: the same
// label if it is still offered, otherwise the best usable variant. With
// nothing usable the session variant is kept as is.
func (s *Supervisor) current(variants []stream.Variant) stream.Variant {
	want := s.sess.variant
	for _, v := range variants {
		if v.Label == want.Label && !v.AudioOnly {
			return v
		}
	}
	if best, ok := stream.PickBest(variants); ok {
		s.logger.Info().
			Str(log.FieldSessionID, s.sess.id).
			Str("from", want.Label).
			Str("to", best.Label).
			Msg("session variant no longer offered")
		return best
	}
	return want
}

// crashTailLines is how much encoder stderr a crash report carries.
const crashTailLines = 20

func (s *Supervisor) logCrash(sess *session) {
	evt := s.logger.Warn().
		Str(log.FieldSessionID, sess.id).
		Str(log.FieldVariant, sess.variant.Label).
		Dur("uptime", s.encoder.ElapsedRuntime(sess.handle))
	if st, ok := sess.handle.Exit(); ok {
		evt = evt.Int(log.FieldExitCode, st.Code)
	}
	evt.Strs("stderr", sess.handle.Diagnostics(crashTailLines)).
		Msg("encoder exited unexpectedly")
}

// restart replaces the running encoder. Graceful stops are used for rotations
// and upgrades; crashes are cleaned up immediately and pass the storm guard.
func (s *Supervisor) restart(ctx context.Context, variant stream.Variant, graceful bool, reason string) (time.Duration, error) {
	s.stopActive(ctx, graceful)

	if reason == reasonCrash {
		delay := s.guard.recordCrash(s.clock.Now())
		if delay > 0 {
			metrics.ObserveStormBackoff(delay.Seconds())
			s.logger.Warn().
				Str(log.FieldSessionID, s.sess.id).
				Int("recent_crashes", s.guard.recent(s.clock.Now())).
				Dur(log.FieldDelay, delay).
				Msg("encoder restart storm, delaying restart")
			if err := s.sleep(ctx, delay); err != nil {
				return 0, err
			}
		}
	}

	h, err := s.launch(ctx, variant)
	if err != nil {
		s.endSession(err)
		return 0, err
	}

	s.setHandle(h)
	s.sess.variant = variant
	s.sess.restartCount++
	metrics.IncRestart(reason)
	s.mu.Lock()
	s.status.Variant = variant.Label
	s.status.RestartCount = s.sess.restartCount
	s.mu.Unlock()

	s.transition(StateRelaying, reason)
	return s.cfg.PollInterval, nil
}

// launch starts the encoder, retrying launch failures with backoff.
func (s *Supervisor) launch(ctx context.Context, variant stream.Variant) (*encoder.Handle, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.LaunchBackoff
	b.RandomizationFactor = 0
	b.Reset()

	ctx = log.ContextWithChannel(ctx, string(s.cfg.Channel))
	if s.sess != nil {
		ctx = log.ContextWithSessionID(ctx, s.sess.id)
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxLaunchAttempts; attempt++ {
		h, err := s.encoder.Start(ctx, variant, s.cfg.Profile, s.cfg.Destination)
		if err == nil {
			s.mu.Lock()
			s.status.Variant = variant.Label
			s.mu.Unlock()
			if s.span != nil {
				s.span.SetAttributes(telemetry.VariantAttributes(variant.Label, variant.Ordinal)...)
				s.span.AddEvent("encoder.started", trace.WithAttributes(
					telemetry.EncoderAttributes(s.cfg.Profile.PreferredEncoder.Codec(), s.cfg.Profile.Constrained, h.PID())...))
			}
			return h, nil
		}
		if errors.Is(err, encoder.ErrAlreadyRunning) {
			return nil, fmt.Errorf("start encoder: %w", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		metrics.IncLaunchFailure()
		s.recordError(err)
		s.logger.Warn().
			Err(err).
			Int(log.FieldAttempt, attempt).
			Int("max_attempts", s.cfg.MaxLaunchAttempts).
			Str(log.FieldVariant, variant.Label).
			Msg("encoder launch failed")

		if attempt < s.cfg.MaxLaunchAttempts {
			if err := s.sleep(ctx, b.NextBackOff()); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrLaunchExhausted, s.cfg.MaxLaunchAttempts, lastErr)
}

// providerFailure absorbs a transient provider error: no transition, just a
// growing delay before the next poll.
func (s *Supervisor) providerFailure(ctx context.Context, op string, err error) (time.Duration, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	delay := s.providerBackoff.NextBackOff()
	s.recordError(err)
	s.providerLog.Do(func() {
		evt := s.logger.Warn().
			Err(err).
			Str("op", op).
			Str(log.FieldState, string(s.State())).
			Dur(log.FieldDelay, delay)
		if s.sess != nil {
			evt = evt.Str(log.FieldSessionID, s.sess.id).
				Str(log.FieldVariant, s.sess.variant.Label).
				Int(log.FieldRestartCount, s.sess.restartCount)
		}
		evt.Msg("provider lookup failed, will retry")
	})
	return delay, nil
}

// Shutdown moves to SHUTTING_DOWN and gracefully stops the active encoder.
// It uses its own timeout so it still works after the run context is done.
func (s *Supervisor) Shutdown() {
	if s.State().Terminal() {
		return
	}
	s.transition(StateShuttingDown, reasonShutdown)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	s.stopActive(ctx, true)
	s.endSession(nil)
	s.logger.Info().Msg("relay supervisor stopped")
}

func (s *Supervisor) stopActive(ctx context.Context, graceful bool) {
	if s.sess == nil || s.sess.handle == nil {
		return
	}
	if err := s.encoder.Stop(ctx, s.sess.handle, graceful); err != nil {
		s.logger.Error().
			Err(err).
			Str(log.FieldSessionID, s.sess.id).
			Bool("graceful", graceful).
			Msg("encoder stop failed")
	}
	s.setHandle(nil)
}

func (s *Supervisor) setHandle(h *encoder.Handle) {
	s.sess.handle = h
	s.mu.Lock()
	s.active = h
	s.mu.Unlock()
}

func (s *Supervisor) beginSession(ctx context.Context, variant stream.Variant) {
	now := s.clock.Now()
	s.sess = &session{id: uuid.NewString(), startedAt: now, variant: variant}
	_, s.span = s.tracer.Start(ctx, "relay.session",
		trace.WithAttributes(telemetry.SessionAttributes(string(s.cfg.Channel), s.sess.id)...))
	metrics.IncSession()

	s.mu.Lock()
	s.status.SessionID = s.sess.id
	s.status.SessionStart = &now
	s.status.Variant = variant.Label
	s.status.RestartCount = 0
	s.status.LastError = ""
	s.mu.Unlock()

	s.logger.Info().
		Str(log.FieldSessionID, s.sess.id).
		Str(log.FieldVariant, variant.Label).
		Msg("relay session started")
}

func (s *Supervisor) endSession(err error) {
	if s.sess == nil {
		return
	}
	if s.span != nil {
		if err != nil {
			s.span.RecordError(err)
			s.span.SetStatus(codes.Error, err.Error())
		}
		s.span.End()
		s.span = nil
	}
	s.logger.Info().
		Str(log.FieldSessionID, s.sess.id).
		Int(log.FieldRestartCount, s.sess.restartCount).
		Dur("duration", s.clock.Now().Sub(s.sess.startedAt)).
		Msg("relay session ended")
	s.sess = nil

	s.mu.Lock()
	s.status.SessionID = ""
	s.status.SessionStart = nil
	s.status.Variant = ""
	s.mu.Unlock()
}

func (s *Supervisor) transition(to State, reason string) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.transitions++
	s.mu.Unlock()

	metrics.RecordTransition(string(from), string(to))
	metrics.SetRelayState(string(to), allStates)

	restarts := 0
	evt := s.logger.Info().
		Str(log.FieldEvent, "relay.transition").
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldReason, reason)
	if s.sess != nil {
		restarts = s.sess.restartCount
		evt = evt.Str(log.FieldSessionID, s.sess.id).
			Str(log.FieldVariant, s.sess.variant.Label).
			Int(log.FieldRestartCount, restarts)
	}
	evt.Msg("state transition")

	if s.span != nil {
		s.span.AddEvent("relay.transition", trace.WithAttributes(
			telemetry.TransitionAttributes(string(from), string(to), reason, restarts)...))
	}
}

func (s *Supervisor) recordError(err error) {
	if s.sess != nil {
		s.sess.lastErr = err
	}
	if s.span != nil {
		s.span.RecordError(err, trace.WithAttributes(telemetry.ErrorAttributes(err, errorKind(err))...))
	}
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()
}

func errorKind(err error) string {
	var transient *provider.TransientError
	var launch *encoder.LaunchError
	switch {
	case errors.Is(err, ErrUnexpectedTermination):
		return "unexpected_termination"
	case errors.As(err, &launch):
		return "launch"
	case errors.As(err, &transient):
		return "provider"
	default:
		return "other"
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

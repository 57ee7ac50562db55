// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/provider"
)

type harness struct {
	sup   *Supervisor
	prov  *fakeProvider
	enc   *fakeEncoder
	clock *mockClock
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	clk := newMockClock()
	prov := &fakeProvider{}
	enc := newFakeEncoder(clk)
	cfg := Config{
		Channel:     "somechannel",
		Destination: "rtmps://a.rtmps.youtube.com/live2/key",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sup := New(cfg, prov, enc)
	sup.clock = clk
	enc.sup = sup
	return &harness{sup: sup, prov: prov, enc: enc, clock: clk}
}

func (h *harness) tick(t *testing.T) time.Duration {
	t.Helper()
	d, err := h.sup.Tick(context.Background())
	require.NoError(t, err)
	return d
}

func TestSupervisor_OfflineToUpgradeScenario(t *testing.T) {
	h := newHarness(t, nil)

	h.prov.set(provider.Offline)
	assert.Equal(t, DefaultOfflinePollInterval, h.tick(t))
	assert.Equal(t, StateWaitingForLive, h.sup.State())
	assert.Empty(t, h.enc.Starts())

	h.prov.set(provider.Online, variant("audio_only"), variant("480p"), variant("1080p"))
	assert.Equal(t, DefaultPollInterval, h.tick(t))
	require.Equal(t, StateRelaying, h.sup.State())
	require.Len(t, h.enc.Starts(), 1)
	assert.Equal(t, "1080p", h.enc.Starts()[0].Label)

	sessionID := h.sup.Snapshot().SessionID
	require.NotEmpty(t, sessionID)

	// Same variants: nothing happens.
	h.tick(t)
	assert.Empty(t, h.enc.Stops())

	h.prov.set(provider.Online, variant("audio_only"), variant("480p"), variant("1080p"), variant("1440p"))
	h.tick(t)

	assert.Equal(t, StateRelaying, h.sup.State())
	stops := h.enc.Stops()
	require.Len(t, stops, 1, "exactly one restart")
	assert.True(t, stops[0].graceful)
	assert.Equal(t, "1080p", stops[0].variant)

	starts := h.enc.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, "1440p", starts[1].Label)

	snap := h.sup.Snapshot()
	assert.Equal(t, 1, snap.RestartCount)
	assert.Equal(t, "1440p", snap.Variant)
	assert.Equal(t, sessionID, snap.SessionID, "upgrade keeps the session")
	assert.Equal(t, 1, h.enc.alive())
}

func TestSupervisor_EqualOrdinalNeverUpgrades(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("720p60"))
	h.tick(t)

	same := variant("720p60")
	same.URL = "https://cdn.invalid/other.m3u8"
	h.prov.set(provider.Online, same)
	h.tick(t)
	h.tick(t)

	assert.Empty(t, h.enc.Stops())
	assert.Len(t, h.enc.Starts(), 1)
}

func TestSupervisor_OfflineStopsBeforeWaiting(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)
	require.Equal(t, StateRelaying, h.sup.State())

	h.prov.set(provider.Offline)
	assert.Equal(t, DefaultOfflinePollInterval, h.tick(t))

	stops := h.enc.Stops()
	require.Len(t, stops, 1)
	assert.True(t, stops[0].graceful)
	assert.Equal(t, StateRelaying, stops[0].stateAtCall, "stop must complete before leaving RELAYING")
	assert.Equal(t, StateWaitingForLive, h.sup.State())
	assert.Empty(t, h.sup.Snapshot().SessionID)
	assert.Zero(t, h.enc.alive())
}

func TestSupervisor_RuntimeCeilingIsInclusive(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	h.clock.Advance(DefaultMaxRuntime - time.Second)
	h.tick(t)
	assert.Empty(t, h.enc.Stops(), "below the ceiling")

	h.clock.Advance(time.Second)
	h.tick(t)

	stops := h.enc.Stops()
	require.Len(t, stops, 1)
	assert.True(t, stops[0].graceful)
	assert.Len(t, h.enc.Starts(), 2)
	assert.Equal(t, "1080p60", h.enc.Starts()[1].Label)
	assert.Equal(t, 1, h.sup.Snapshot().RestartCount)
	assert.Equal(t, StateRelaying, h.sup.State())
}

func TestSupervisor_CrashRestartsImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	h.enc.crashAll()
	h.tick(t)

	stops := h.enc.Stops()
	require.Len(t, stops, 1)
	assert.False(t, stops[0].graceful)
	assert.Len(t, h.enc.Starts(), 2)

	snap := h.sup.Snapshot()
	assert.Equal(t, 1, snap.RestartCount)
	assert.Equal(t, ErrUnexpectedTermination.Error(), snap.LastError)
	assert.Empty(t, h.clock.Sleeps(), "no storm delay below threshold")
}

func TestSupervisor_StormBackoffIsMonotonic(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.StormThreshold = 3
		c.StormWindow = 10 * time.Minute
		c.StormBackoffInitial = 5 * time.Second
		c.StormBackoffMax = 40 * time.Second
	})
	h.prov.set(provider.Online, variant("1080p60"))
	h.enc.crashOnStart = true
	h.tick(t)

	for i := 0; i < 7; i++ {
		h.tick(t)
	}

	sleeps := h.clock.Sleeps()
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second,
	}, sleeps)
	for i := 1; i < len(sleeps); i++ {
		assert.GreaterOrEqual(t, sleeps[i], sleeps[i-1])
	}
	assert.Equal(t, 7, h.sup.Snapshot().RestartCount)
}

func TestSupervisor_StormGuardForgetsOldCrashes(t *testing.T) {
	g := newStormGuard(2, time.Minute, time.Second, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Zero(t, g.recordCrash(now))
	assert.Zero(t, g.recordCrash(now))
	assert.Equal(t, time.Second, g.recordCrash(now))
	assert.Equal(t, 2*time.Second, g.recordCrash(now))

	later := now.Add(2 * time.Minute)
	assert.Zero(t, g.recordCrash(later))
	assert.Equal(t, 1, g.recent(later))
}

func TestSupervisor_RotationDoesNotFeedStormGuard(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.StormThreshold = 1
		c.MaxRuntime = time.Minute
	})
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	for i := 0; i < 4; i++ {
		h.clock.Advance(time.Minute)
		h.tick(t)
	}
	assert.Empty(t, h.clock.Sleeps())
	assert.Equal(t, 4, h.sup.Snapshot().RestartCount)
}

func TestSupervisor_ProviderErrorIsTransient(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	h.prov.fail(errors.New("timeout"))
	assert.Equal(t, 5*time.Second, h.tick(t))
	assert.Equal(t, 10*time.Second, h.tick(t))
	assert.Equal(t, StateRelaying, h.sup.State())
	assert.Empty(t, h.enc.Stops())
	assert.Contains(t, h.sup.Snapshot().LastError, "timeout")

	h.prov.set(provider.Online, variant("1080p60"))
	assert.Equal(t, DefaultPollInterval, h.tick(t))

	h.prov.fail(errors.New("timeout"))
	assert.Equal(t, 5*time.Second, h.tick(t), "backoff resets after success")
}

func TestSupervisor_ProviderErrorWhileWaiting(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.fail(errors.New("dns"))
	h.tick(t)
	assert.Equal(t, StateWaitingForLive, h.sup.State())
	assert.Empty(t, h.enc.Starts())
}

func TestSupervisor_NoUsableVariantKeepsWaiting(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("audio_only"))
	assert.Equal(t, DefaultOfflinePollInterval, h.tick(t))
	assert.Equal(t, StateWaitingForLive, h.sup.State())
	assert.Empty(t, h.enc.Starts())
}

func TestSupervisor_LaunchRetriedThenExhausted(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	launchErr := &encoder.LaunchError{Binary: "ffmpeg", Err: errors.New("exec format error")}
	h.enc.startFn = func(int) error { return launchErr }

	_, err := h.sup.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunchExhausted)
	var le *encoder.LaunchError
	assert.ErrorAs(t, err, &le)
	assert.Equal(t, DefaultMaxLaunchAttempts, h.enc.attempt)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, h.clock.Sleeps())
}

func TestSupervisor_LaunchRecoversWithinAttempts(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.enc.startFn = func(attempt int) error {
		if attempt < 3 {
			return &encoder.LaunchError{Binary: "ffmpeg", Err: errors.New("busy")}
		}
		return nil
	}

	h.tick(t)
	assert.Equal(t, StateRelaying, h.sup.State())
	assert.Len(t, h.enc.Starts(), 1)
}

func TestSupervisor_DuplicateStartIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.enc.startFn = func(int) error {
		return &encoder.LaunchError{Binary: "ffmpeg", Err: encoder.ErrAlreadyRunning}
	}

	_, err := h.sup.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, encoder.ErrAlreadyRunning)
	assert.NotErrorIs(t, err, ErrLaunchExhausted)
	assert.Equal(t, 1, h.enc.attempt)
}

func TestSupervisor_RunStopsEncoderOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	prov := &fakeProvider{}
	prov.set(provider.Online, variant("1080p60"))
	enc := newFakeEncoder(realClock{})
	sup := New(Config{
		Channel:             "somechannel",
		Destination:         "rtmp://ingest.invalid/live2/key",
		PollInterval:        5 * time.Millisecond,
		OfflinePollInterval: 5 * time.Millisecond,
	}, prov, enc)
	enc.sup = sup

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return sup.State() == StateRelaying }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, StateShuttingDown, sup.State())
	assert.Zero(t, enc.alive())
	stops := enc.Stops()
	require.Len(t, stops, 1)
	assert.True(t, stops[0].graceful)
}

func TestSupervisor_RunReturnsFatalError(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.enc.startFn = func(int) error {
		return &encoder.LaunchError{Binary: "ffmpeg", Err: errors.New("no such file")}
	}

	err := h.sup.Run(context.Background())
	require.ErrorIs(t, err, ErrLaunchExhausted)
	assert.Equal(t, StateShuttingDown, h.sup.State())

	_, err = h.sup.Tick(context.Background())
	assert.Error(t, err, "terminal state")
}

func TestSupervisor_SessionSpanRecordsTransitions(t *testing.T) {
	h := newHarness(t, nil)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h.sup.tracer = tp.Tracer("test")

	h.prov.set(provider.Online, variant("720p"))
	h.tick(t)
	h.prov.set(provider.Online, variant("720p"), variant("1080p"))
	h.tick(t)
	h.prov.set(provider.Offline)
	h.tick(t)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "relay.session", ended[0].Name())

	var transitions int
	for _, ev := range ended[0].Events() {
		if ev.Name == "relay.transition" {
			transitions++
		}
	}
	// online, upgrading, relaying, waiting
	assert.Equal(t, 4, transitions)
}

func TestSupervisor_SnapshotReportsUptime(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	h.clock.Advance(42 * time.Minute)
	snap := h.sup.Snapshot()
	assert.Equal(t, StateRelaying, snap.State)
	assert.Equal(t, 42*time.Minute, snap.Uptime)
	assert.Equal(t, "somechannel", snap.Channel)
	require.NotNil(t, snap.SessionStart)
	assert.Equal(t, 1, snap.Transitions)
}

func TestSupervisor_RestartResolvesCurrentSourceURL(t *testing.T) {
	tests := []struct {
		name     string
		trigger  func(h *harness)
		graceful bool
	}{
		{"crash", func(h *harness) { h.enc.crashAll() }, false},
		{"rotation", func(h *harness) { h.clock.Advance(DefaultMaxRuntime) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.prov.set(provider.Online, variantAt("1080p60", "https://cdn.invalid/token-old.m3u8"))
			h.tick(t)

			h.prov.set(provider.Online,
				variantAt("720p60", "https://cdn.invalid/720.m3u8"),
				variantAt("1080p60", "https://cdn.invalid/token-new.m3u8"))
			tt.trigger(h)
			h.tick(t)

			stops := h.enc.Stops()
			require.Len(t, stops, 1)
			assert.Equal(t, tt.graceful, stops[0].graceful)
			starts := h.enc.Starts()
			require.Len(t, starts, 2)
			assert.Equal(t, "1080p60", starts[1].Label)
			assert.Equal(t, "https://cdn.invalid/token-new.m3u8", starts[1].URL)
		})
	}
}

func TestSupervisor_CrashRestartFallsBackWhenLabelGone(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	h.prov.set(provider.Online, variant("audio_only"), variant("480p"), variant("720p60"))
	h.enc.crashAll()
	h.tick(t)

	starts := h.enc.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, "720p60", starts[1].Label)
	assert.Equal(t, "720p60", h.sup.Snapshot().Variant)
	assert.Equal(t, StateRelaying, h.sup.State())
}

func TestSupervisor_RestartKeepsVariantWhenNothingUsable(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	h.prov.set(provider.Online, variant("audio_only"))
	h.enc.crashAll()
	h.tick(t)

	starts := h.enc.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, variant("1080p60"), starts[1])
}

func TestSupervisor_ProviderErrorDefersCrashRestart(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)

	h.enc.crashAll()
	h.prov.fail(errors.New("timeout"))
	h.tick(t)
	assert.Equal(t, StateRelaying, h.sup.State())
	assert.Len(t, h.enc.Starts(), 1)

	h.prov.set(provider.Online, variant("1080p60"))
	h.tick(t)
	assert.Len(t, h.enc.Starts(), 2)
	assert.Equal(t, 1, h.enc.alive())
}

func TestSupervisor_LaunchExhaustedDuringRestart(t *testing.T) {
	tests := []struct {
		name    string
		trigger func(h *harness)
	}{
		{"crash restart", func(h *harness) { h.enc.crashAll() }},
		{"upgrade", func(h *harness) { h.prov.set(provider.Online, variant("720p60"), variant("1080p60")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.prov.set(provider.Online, variant("720p60"))
			h.tick(t)
			require.Equal(t, StateRelaying, h.sup.State())

			h.enc.startFn = func(int) error {
				return &encoder.LaunchError{Binary: "ffmpeg", Err: errors.New("exec format error")}
			}
			tt.trigger(h)

			_, err := h.sup.Tick(context.Background())
			require.ErrorIs(t, err, ErrLaunchExhausted)
			assert.Equal(t, 1+DefaultMaxLaunchAttempts, h.enc.attempt)
			assert.Empty(t, h.sup.Snapshot().SessionID, "session ends with the failure")
			assert.Zero(t, h.enc.alive())
		})
	}
}

func TestSupervisor_CancelInterruptsBackoffWaits(t *testing.T) {
	const hold = time.Hour
	tests := []struct {
		name   string
		mutate func(*Config)
		setup  func(enc *fakeEncoder)
	}{
		{
			name: "storm guard delay",
			mutate: func(c *Config) {
				c.StormThreshold = 1
				c.StormBackoffInitial = hold
				c.StormBackoffMax = hold
			},
			setup: func(enc *fakeEncoder) { enc.crashOnStart = true },
		},
		{
			name:   "launch retry delay",
			mutate: func(c *Config) { c.LaunchBackoff = hold },
			setup: func(enc *fakeEncoder) {
				enc.crashOnStart = true
				enc.startFn = func(attempt int) error {
					if attempt == 1 {
						return nil
					}
					return &encoder.LaunchError{Binary: "ffmpeg", Err: errors.New("busy")}
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			h := newHarness(t, tt.mutate)
			clk := newGateClock(hold)
			h.sup.clock = clk
			h.enc.clock = clk
			tt.setup(h.enc)
			h.prov.set(provider.Online, variant("1080p60"))

			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- h.sup.Run(ctx) }()

			select {
			case <-clk.held:
			case <-time.After(2 * time.Second):
				cancel()
				t.Fatal("supervisor never entered the backoff wait")
			}
			cancel()

			select {
			case err := <-errCh:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after cancel")
			}
			assert.Equal(t, StateShuttingDown, h.sup.State())
			assert.Zero(t, h.enc.alive())
			assert.Empty(t, h.sup.Snapshot().SessionID)
		})
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the relay components together and owns their
// lifecycle.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrelay/internal/api"
	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/health"
	"github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/provider"
	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/ManuGH/streamrelay/internal/resource"
	"github.com/ManuGH/streamrelay/internal/stream"
	"github.com/ManuGH/streamrelay/internal/telemetry"
)

// Daemon is a fully wired relay process.
type Daemon struct {
	Supervisor *relay.Supervisor
	Profile    resource.EncodingProfile

	manager *Manager
	logger  zerolog.Logger
}

// Options are the build-time inputs that do not come from AppConfig.
type Options struct {
	Version string
	// SkipStartupChecks disables the binary lookups, for tests.
	SkipStartupChecks bool
}

// New builds every component from cfg. The resource profile is computed
// here, once, before the supervisor exists.
func New(ctx context.Context, cfg config.AppConfig, opts Options) (*Daemon, error) {
	logger := log.WithComponent("daemon")

	if !opts.SkipStartupChecks {
		if err := health.PerformStartupChecks(ctx, cfg); err != nil {
			return nil, err
		}
	}

	override, err := resource.ParseEncoder(cfg.FFmpeg.Encoder)
	if err != nil {
		return nil, &config.ConfigurationError{Path: "ffmpeg.encoder", Err: err}
	}
	profile := resource.New(cfg.FFmpeg.Bin, override).Profile(ctx)

	src := provider.NewStreamlink(provider.StreamlinkConfig{
		Binary:      cfg.Streamlink.Bin,
		URLTemplate: cfg.Streamlink.URLTemplate,
		CacheTTL:    cfg.Streamlink.CacheTTL,
		Timeout:     cfg.Streamlink.Timeout,
		ExtraArgs:   cfg.Streamlink.ExtraArgs,
	})
	enc := encoder.NewManager(encoder.Config{
		Binary:      cfg.FFmpeg.Bin,
		GracePeriod: cfg.FFmpeg.GracePeriod,
		KillTimeout: cfg.FFmpeg.KillTimeout,
	})

	sup := relay.New(relay.Config{
		Channel:             stream.ChannelID(cfg.Channel),
		Destination:         cfg.Destination.URL(),
		Profile:             profile,
		PollInterval:        cfg.Relay.PollInterval,
		OfflinePollInterval: cfg.Relay.OfflinePollInterval,
		MaxRuntime:          cfg.Relay.MaxRuntime,
		StormThreshold:      cfg.Relay.StormThreshold,
		StormWindow:         cfg.Relay.StormWindow,
		StormBackoffInitial: cfg.Relay.StormBackoffInitial,
		StormBackoffMax:     cfg.Relay.StormBackoffMax,
		MaxLaunchAttempts:   cfg.Relay.MaxLaunchAttempts,
		LaunchBackoff:       cfg.Relay.LaunchBackoff,
		// The encoder gets its full grace period plus the kill wait.
		StopTimeout: cfg.FFmpeg.GracePeriod + cfg.FFmpeg.KillTimeout + cfg.FFmpeg.KillTimeout,
	}, src, enc)

	deps := Deps{
		Logger:          logger,
		Supervisor:      sup,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	if cfg.Server.ListenAddr != "" {
		hm := health.NewManager(opts.Version)
		hm.RegisterChecker(health.NewRelayChecker(sup))
		hm.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin))
		hm.RegisterChecker(health.NewBinaryChecker("streamlink", cfg.Streamlink.Bin))

		tracingService := ""
		if cfg.Telemetry.Enabled {
			tracingService = "relayd"
		}
		deps.Server = api.New(api.Config{
			ListenAddr:         cfg.Server.ListenAddr,
			RateLimitPerMinute: cfg.Server.RateLimit,
			TracingService:     tracingService,
			ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		}, hm, sup, profile, opts.Version)
	}

	mgr, err := NewManager(deps)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		Supervisor: sup,
		Profile:    profile,
		manager:    mgr,
		logger:     logger,
	}
	d.initTelemetry(ctx, cfg.Telemetry, opts.Version)
	return d, nil
}

// initTelemetry is best effort: a broken exporter never stops the relay.
func (d *Daemon) initTelemetry(ctx context.Context, cfg config.TelemetryConfig, version string) {
	if !cfg.Enabled {
		return
	}
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        true,
		ServiceName:    "relayd",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.Exporter,
		Endpoint:       cfg.Endpoint,
		SamplingRate:   cfg.SamplingRate,
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
		return
	}
	d.manager.RegisterShutdownHook("telemetry", tp.Shutdown)
	d.logger.Info().
		Str("endpoint", cfg.Endpoint).
		Float64("sampling_rate", cfg.SamplingRate).
		Msg("telemetry initialized")
}

// RegisterShutdownHook adds a cleanup step run after all components stopped.
func (d *Daemon) RegisterShutdownHook(name string, hook ShutdownHook) {
	d.manager.RegisterShutdownHook(name, hook)
}

// Run blocks until ctx is cancelled or the supervisor hits a fatal error.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str(log.FieldChannel, d.Supervisor.Snapshot().Channel).
		Msg("starting relay daemon")
	return d.manager.Start(ctx)
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Describe renders a one-line summary of the effective setup.
func Describe(cfg config.AppConfig) string {
	return fmt.Sprintf("channel=%s destination=%s listen=%q",
		cfg.Channel, encoder.MaskDestination(cfg.Destination.URL()), cfg.Server.ListenAddr)
}

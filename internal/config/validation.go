// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/streamrelay/internal/resource"
	"github.com/ManuGH/streamrelay/internal/validate"
)

// Validate checks a loaded configuration.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("channel", cfg.Channel)
	v.NotEmpty("destination.streamKey", cfg.Destination.StreamKey)
	v.URL("destination.ingestURL", cfg.Destination.IngestURL, []string{"rtmp", "rtmps"})

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	if _, err := resource.ParseEncoder(cfg.FFmpeg.Encoder); err != nil {
		v.AddError("ffmpeg.encoder", err.Error(), cfg.FFmpeg.Encoder)
	}
	v.PositiveDuration("ffmpeg.gracePeriod", cfg.FFmpeg.GracePeriod)
	v.PositiveDuration("ffmpeg.killTimeout", cfg.FFmpeg.KillTimeout)

	v.NotEmpty("streamlink.bin", cfg.Streamlink.Bin)
	v.NotEmpty("streamlink.urlTemplate", cfg.Streamlink.URLTemplate)
	v.PositiveDuration("streamlink.cacheTTL", cfg.Streamlink.CacheTTL)
	v.PositiveDuration("streamlink.timeout", cfg.Streamlink.Timeout)

	v.DurationAtLeast("relay.pollInterval", cfg.Relay.PollInterval, time.Second)
	v.DurationAtLeast("relay.offlinePollInterval", cfg.Relay.OfflinePollInterval, time.Second)
	v.DurationAtLeast("relay.maxRuntime", cfg.Relay.MaxRuntime, time.Minute)
	v.Range("relay.stormThreshold", cfg.Relay.StormThreshold, 1, 1000)
	v.PositiveDuration("relay.stormWindow", cfg.Relay.StormWindow)
	v.PositiveDuration("relay.stormBackoffInitial", cfg.Relay.StormBackoffInitial)
	if cfg.Relay.StormBackoffMax < cfg.Relay.StormBackoffInitial {
		v.AddError("relay.stormBackoffMax", "must not be below relay.stormBackoffInitial", cfg.Relay.StormBackoffMax)
	}
	v.Range("relay.maxLaunchAttempts", cfg.Relay.MaxLaunchAttempts, 1, 100)
	v.PositiveDuration("relay.launchBackoff", cfg.Relay.LaunchBackoff)

	if cfg.Server.ListenAddr != "" {
		v.ListenAddr("server.listenAddr", cfg.Server.ListenAddr)
		v.Positive("server.rateLimit", cfg.Server.RateLimit)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.LogLevel("logLevel", cfg.LogLevel)

	return v.Err()
}

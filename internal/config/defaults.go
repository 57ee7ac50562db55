// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/streamrelay/internal/provider"
	"github.com/ManuGH/streamrelay/internal/relay"
)

// DefaultIngestURL is the YouTube RTMPS ingest endpoint.
const DefaultIngestURL = "rtmps://a.rtmps.youtube.com/live2"

// Defaults returns the configuration used when neither file nor environment
// set a value.
func Defaults() AppConfig {
	return AppConfig{
		Destination: DestinationConfig{
			IngestURL: DefaultIngestURL,
		},
		FFmpeg: FFmpegConfig{
			Bin:         "ffmpeg",
			Encoder:     "auto",
			GracePeriod: 10 * time.Second,
			KillTimeout: 5 * time.Second,
		},
		Streamlink: StreamlinkConfig{
			Bin:         "streamlink",
			URLTemplate: provider.DefaultURLTemplate,
			CacheTTL:    5 * time.Second,
			Timeout:     30 * time.Second,
		},
		Relay: RelayConfig{
			PollInterval:        relay.DefaultPollInterval,
			OfflinePollInterval: relay.DefaultOfflinePollInterval,
			MaxRuntime:          relay.DefaultMaxRuntime,
			StormThreshold:      relay.DefaultStormThreshold,
			StormWindow:         relay.DefaultStormWindow,
			StormBackoffInitial: relay.DefaultStormBackoffInitial,
			StormBackoffMax:     relay.DefaultStormBackoffMax,
			MaxLaunchAttempts:   relay.DefaultMaxLaunchAttempts,
			LaunchBackoff:       relay.DefaultLaunchBackoff,
		},
		Server: ServerConfig{
			ListenAddr:      ":9810",
			RateLimit:       60,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		LogLevel: "info",
	}
}

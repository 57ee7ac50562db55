// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"
)

// AppConfig is the effective relay configuration.
type AppConfig struct {
	// Channel is the source channel login (a channel URL is normalized on load).
	Channel     string            `yaml:"channel" json:"channel"`
	Destination DestinationConfig `yaml:"destination" json:"destination"`
	FFmpeg      FFmpegConfig      `yaml:"ffmpeg" json:"ffmpeg"`
	Streamlink  StreamlinkConfig  `yaml:"streamlink" json:"streamlink"`
	Relay       RelayConfig       `yaml:"relay" json:"relay"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" json:"telemetry"`
	LogLevel    string            `yaml:"logLevel" json:"logLevel"`
}

// DestinationConfig describes the ingest endpoint.
type DestinationConfig struct {
	IngestURL string `yaml:"ingestURL" json:"ingestURL"`
	StreamKey string `yaml:"streamKey" json:"streamKey"`
}

// URL is the full ingest URL including the stream key.
func (d DestinationConfig) URL() string {
	return strings.TrimRight(d.IngestURL, "/") + "/" + d.StreamKey
}

// FFmpegConfig configures the encoder process.
type FFmpegConfig struct {
	Bin string `yaml:"bin" json:"bin"`
	// Encoder overrides GPU detection: auto, software, nvenc, amf, qsv.
	Encoder     string        `yaml:"encoder" json:"encoder"`
	GracePeriod time.Duration `yaml:"gracePeriod" json:"gracePeriod"`
	KillTimeout time.Duration `yaml:"killTimeout" json:"killTimeout"`
}

// StreamlinkConfig configures the streamlink provider.
type StreamlinkConfig struct {
	Bin         string        `yaml:"bin" json:"bin"`
	URLTemplate string        `yaml:"urlTemplate" json:"urlTemplate"`
	CacheTTL    time.Duration `yaml:"cacheTTL" json:"cacheTTL"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	ExtraArgs   []string      `yaml:"extraArgs,omitempty" json:"extraArgs,omitempty"`
}

// RelayConfig tunes the supervisor.
type RelayConfig struct {
	PollInterval        time.Duration `yaml:"pollInterval" json:"pollInterval"`
	OfflinePollInterval time.Duration `yaml:"offlinePollInterval" json:"offlinePollInterval"`
	MaxRuntime          time.Duration `yaml:"maxRuntime" json:"maxRuntime"`
	StormThreshold      int           `yaml:"stormThreshold" json:"stormThreshold"`
	StormWindow         time.Duration `yaml:"stormWindow" json:"stormWindow"`
	StormBackoffInitial time.Duration `yaml:"stormBackoffInitial" json:"stormBackoffInitial"`
	StormBackoffMax     time.Duration `yaml:"stormBackoffMax" json:"stormBackoffMax"`
	MaxLaunchAttempts   int           `yaml:"maxLaunchAttempts" json:"maxLaunchAttempts"`
	LaunchBackoff       time.Duration `yaml:"launchBackoff" json:"launchBackoff"`
}

// ServerConfig configures the ops HTTP server. An empty ListenAddr disables it.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr" json:"listenAddr"`
	RateLimit       int           `yaml:"rateLimit" json:"rateLimit"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	Environment  string  `yaml:"environment" json:"environment"`
}

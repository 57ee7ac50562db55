// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvChannel             = "RELAY_CHANNEL"
	EnvStreamKey           = "RELAY_STREAM_KEY"
	EnvIngestURL           = "RELAY_INGEST_URL"
	EnvFFmpegBin           = "RELAY_FFMPEG_BIN"
	EnvStreamlinkBin       = "RELAY_STREAMLINK_BIN"
	EnvEncoder             = "RELAY_ENCODER"
	EnvPollInterval        = "RELAY_POLL_INTERVAL"
	EnvOfflinePollInterval = "RELAY_OFFLINE_POLL_INTERVAL"
	EnvMaxRuntime          = "RELAY_MAX_RUNTIME"
	EnvMaxLaunchAttempts   = "RELAY_MAX_LAUNCH_ATTEMPTS"
	EnvListen              = "RELAY_LISTEN"
	EnvTelemetryEnabled    = "RELAY_TELEMETRY_ENABLED"
	EnvTelemetryEndpoint   = "RELAY_OTLP_ENDPOINT"
	EnvSamplingRate        = "RELAY_TRACE_SAMPLING_RATE"
	EnvLogLevel            = "LOG_LEVEL"
)

// Loader resolves an AppConfig from defaults, an optional YAML or JSON
// file and the environment, in increasing precedence.
type Loader struct {
	configPath string
}

// NewLoader returns a Loader for path. An empty path skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load is NewLoader(path).Load().
func Load(path string) (AppConfig, error) {
	return NewLoader(path).Load()
}

// Load resolves, normalizes and validates the configuration. Every error is
// a *ConfigurationError.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	fail := func(err error) (AppConfig, error) {
		return cfg, &ConfigurationError{Path: l.configPath, Err: err}
	}

	if l.configPath != "" {
		if err := decodeFile(l.configPath, &cfg); err != nil {
			return fail(err)
		}
	}
	applyEnv(&cfg)

	if cfg.Channel != "" {
		login, err := NormalizeChannel(cfg.Channel, cfg.Streamlink.URLTemplate)
		if err != nil {
			return fail(err)
		}
		cfg.Channel = login
	}
	if err := Validate(cfg); err != nil {
		return fail(err)
	}
	return cfg, nil
}

// decodeFile strictly decodes a single YAML (or JSON, which YAML accepts)
// document over cfg. Keys absent from the file keep their value.
func decodeFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("unsupported config format: %q (want .yaml, .yml or .json)", ext)
	}

	// #nosec G304 -- the operator chooses the config path
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrConfigMissing
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if isUnknownField(err) {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("parse config: %w", err)
	}
	if err := dec.Decode(new(struct{})); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// isUnknownField recognizes the KnownFields rejection; yaml.v3 has no typed
// error for it.
func isUnknownField(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "field ") && strings.Contains(msg, " not found in type")
}

// override replaces *dst with the environment value of key when present.
func override[T any](key string, dst *T, read func(string, T) T) {
	*dst = read(key, *dst)
}

func applyEnv(cfg *AppConfig) {
	override(EnvChannel, &cfg.Channel, ParseString)
	override(EnvStreamKey, &cfg.Destination.StreamKey, ParseString)
	override(EnvIngestURL, &cfg.Destination.IngestURL, ParseString)

	override(EnvFFmpegBin, &cfg.FFmpeg.Bin, ParseString)
	override(EnvEncoder, &cfg.FFmpeg.Encoder, ParseString)
	override(EnvStreamlinkBin, &cfg.Streamlink.Bin, ParseString)

	override(EnvPollInterval, &cfg.Relay.PollInterval, ParseDuration)
	override(EnvOfflinePollInterval, &cfg.Relay.OfflinePollInterval, ParseDuration)
	override(EnvMaxRuntime, &cfg.Relay.MaxRuntime, ParseDuration)
	override(EnvMaxLaunchAttempts, &cfg.Relay.MaxLaunchAttempts, ParseInt)

	override(EnvListen, &cfg.Server.ListenAddr, ParseString)

	override(EnvTelemetryEnabled, &cfg.Telemetry.Enabled, ParseBool)
	override(EnvTelemetryEndpoint, &cfg.Telemetry.Endpoint, ParseString)
	override(EnvSamplingRate, &cfg.Telemetry.SamplingRate, ParseFloat)

	override(EnvLogLevel, &cfg.LogLevel, ParseString)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrConfigMissing means the configuration file does not exist.
	ErrConfigMissing = errors.New("config file not found")

	// ErrInvalidChannel means the channel is neither a login nor a channel URL.
	ErrInvalidChannel = errors.New("invalid channel")
)

// ConfigurationError is fatal: the daemon cannot start with this configuration.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the relay configuration.
//
// Precedence is ENV > file > defaults. The file is YAML (JSON is accepted as
// a YAML subset) and decoded strictly: unknown keys are rejected. The loaded
// configuration is validated once and never reloaded.
package config

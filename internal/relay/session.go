// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"time"

	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/stream"
)

// session is one continuous online period of the channel. It survives
// restarts and upgrades and ends when the channel goes offline or the
// supervisor shuts down.
type session struct {
	id           string
	startedAt    time.Time
	variant      stream.Variant
	handle       *encoder.Handle
	restartCount int
	lastErr      error
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State        State         `json:"state"`
	Channel      string        `json:"channel"`
	SessionID    string        `json:"session_id,omitempty"`
	SessionStart *time.Time    `json:"session_started_at,omitempty"`
	Variant      string        `json:"variant,omitempty"`
	RestartCount int           `json:"restart_count"`
	Uptime       time.Duration `json:"uptime_ns"`
	LastError    string        `json:"last_error,omitempty"`
	Transitions  int           `json:"transitions"`
}

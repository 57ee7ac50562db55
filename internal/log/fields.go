// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldChannel   = "channel"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"
	FieldEncoder   = "encoder"

	// Relay fields
	FieldState        = "state"
	FieldOldState     = "old_state"
	FieldNewState     = "new_state"
	FieldVariant      = "variant"
	FieldRestartCount = "restart_count"
	FieldReason       = "reason"
	FieldAttempt      = "attempt"
	FieldDelay        = "delay"

	// Path / URL fields
	FieldPath        = "path"
	FieldDestination = "destination"
)

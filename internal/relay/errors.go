// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import "errors"

var (
	// ErrLaunchExhausted is fatal: the encoder could not be started within
	// the configured number of attempts.
	ErrLaunchExhausted = errors.New("encoder launch attempts exhausted")

	// ErrUnexpectedTermination records that the encoder exited while the
	// supervisor expected it to be running.
	ErrUnexpectedTermination = errors.New("encoder terminated unexpectedly")
)

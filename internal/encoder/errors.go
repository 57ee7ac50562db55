// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is a caller contract violation: Start was called while
	// a process is still tracked as running.
	ErrAlreadyRunning = errors.New("encoder already running")

	// ErrBinaryNotFound means the encoder executable could not be located.
	ErrBinaryNotFound = errors.New("encoder binary not found")
)

// LaunchError reports that an encoder process could not be started.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

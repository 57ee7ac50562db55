// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set does nothing: Windows has no POSIX process groups.
func Set(*exec.Cmd) {}

// signalGroup only understands SIGKILL. SIGTERM is dropped, so Terminate
// falls through to the forced kill once the grace period ends.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if sig != syscall.SIGKILL {
		return nil
	}
	return cmd.Process.Kill()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts commands in their own process group and tears the
// whole group down, so encoder helper processes never outlive the encoder.
package procgroup

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/streamrelay/internal/metrics"
)

// ErrKillFailed is returned when a process group did not exit even after SIGKILL.
var ErrKillFailed = errors.New("kill operation failed")

// Terminate stops the process group of cmd and waits on exited, which the
// caller closes once cmd.Wait has returned.
//
// With grace > 0 the group receives SIGTERM first and SIGKILL only if it is
// still alive after grace or ctx is done. With grace <= 0 it is killed
// immediately. killWait bounds the wait after SIGKILL. Nothing is signalled
// when exited is already closed. Safe to call on nil or unstarted commands.
func Terminate(ctx context.Context, cmd *exec.Cmd, exited <-chan struct{}, grace, killWait time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// Once the leader is reaped its PID, and so the group ID, may belong to
	// an unrelated process.
	select {
	case <-exited:
		metrics.IncProcWait("reaped")
		return nil
	default:
	}

	if grace > 0 {
		signal(cmd, syscall.SIGTERM)
		select {
		case <-exited:
			metrics.IncProcWait("exited")
			return nil
		case <-time.After(grace):
		case <-ctx.Done():
		}
	}

	signal(cmd, syscall.SIGKILL)
	select {
	case <-exited:
		metrics.IncProcWait("killed")
		return nil
	case <-time.After(killWait):
		metrics.IncProcWait("stuck")
		return ErrKillFailed
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	err := signalGroup(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/ManuGH/streamrelay/internal/relay"
)

// StatusSource exposes the relay supervisor status.
type StatusSource interface {
	Snapshot() relay.Status
}

// RelayChecker reports the supervisor state.
type RelayChecker struct {
	source StatusSource
}

// NewRelayChecker creates a checker backed by the supervisor.
func NewRelayChecker(source StatusSource) *RelayChecker {
	return &RelayChecker{source: source}
}

func (c *RelayChecker) Name() string {
	return "relay"
}

// Check is unhealthy once the supervisor has shut down, degraded while it is
// between encoder processes, healthy otherwise. Waiting for the channel to
// go live is healthy.
func (c *RelayChecker) Check(_ context.Context) CheckResult {
	st := c.source.Snapshot()
	switch st.State {
	case relay.StateShuttingDown:
		return CheckResult{Status: StatusUnhealthy, Message: "supervisor stopped", Error: st.LastError}
	case relay.StateRestarting, relay.StateUpgrading:
		return CheckResult{Status: StatusDegraded, Message: string(st.State)}
	case relay.StateRelaying:
		return CheckResult{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("relaying %s (restarts: %d)", st.Variant, st.RestartCount),
		}
	default:
		return CheckResult{Status: StatusHealthy, Message: string(st.State)}
	}
}

// BinaryChecker checks that an executable is resolvable through PATH.
type BinaryChecker struct {
	name string
	bin  string
}

// NewBinaryChecker creates a checker for an external executable.
func NewBinaryChecker(name, bin string) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin}
}

func (c *BinaryChecker) Name() string {
	return c.name
}

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := exec.LookPath(c.bin)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.bin,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

// State is a relay supervisor state.
type State string

const (
	StateWaitingForLive State = "WAITING_FOR_LIVE"
	StateRelaying       State = "RELAYING"
	StateUpgrading      State = "UPGRADING"
	StateRestarting     State = "RESTARTING"
	StateShuttingDown   State = "SHUTTING_DOWN"
)

var allStates = []string{
	string(StateWaitingForLive),
	string(StateRelaying),
	string(StateUpgrading),
	string(StateRestarting),
	string(StateShuttingDown),
}

// Terminal reports whether no transition can leave s.
func (s State) Terminal() bool { return s == StateShuttingDown }

// Restart reasons.
const (
	reasonCrash    = "crash"
	reasonRotation = "rotation"
	reasonUpgrade  = "upgrade"
	reasonOffline  = "offline"
	reasonOnline   = "online"
	reasonShutdown = "shutdown"
)

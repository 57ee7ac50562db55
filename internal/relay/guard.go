// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// stormGuard delays restarts once the encoder keeps crashing. Only
// unexpected terminations are recorded; rotations and upgrades are not.
type stormGuard struct {
	threshold int
	window    time.Duration
	crashes   []time.Time
	backoff   *backoff.ExponentialBackOff
}

func newStormGuard(threshold int, window, initial, maxDelay time.Duration) *stormGuard {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return &stormGuard{threshold: threshold, window: window, backoff: b}
}

// recordCrash registers a crash at now and returns how long to wait before
// the next start. The delay is zero until more than threshold crashes fall
// inside the window, then doubles with every further crash up to the cap.
func (g *stormGuard) recordCrash(now time.Time) time.Duration {
	g.crashes = append(g.crashes, now)
	g.prune(now)
	if len(g.crashes) <= g.threshold {
		g.backoff.Reset()
		return 0
	}
	return g.backoff.NextBackOff()
}

// recent returns the number of crashes inside the window ending at now.
func (g *stormGuard) recent(now time.Time) int {
	g.prune(now)
	return len(g.crashes)
}

func (g *stormGuard) prune(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.crashes) && !g.crashes[i].After(cutoff) {
		i++
	}
	g.crashes = g.crashes[i:]
}

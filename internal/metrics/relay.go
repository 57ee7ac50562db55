// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the relay daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamrelay",
		Subsystem: "relay",
		Name:      "state",
		Help:      "Current supervisor state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	relayTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "relay",
		Name:      "transitions_total",
		Help:      "Supervisor state transitions",
	}, []string{"from", "to"})

	relayRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "relay",
		Name:      "restarts_total",
		Help:      "Encoder restarts within a relay session by reason",
	}, []string{"reason"}) // reason=crash|rotation|upgrade

	relaySessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "relay",
		Name:      "sessions_total",
		Help:      "Relay sessions started (source went live)",
	})

	stormBackoff = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streamrelay",
		Subsystem: "relay",
		Name:      "storm_backoff_seconds",
		Help:      "Delays imposed by the restart storm guard",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to 512s
	})

	providerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "provider",
		Name:      "errors_total",
		Help:      "Transient stream provider failures by operation",
	}, []string{"op"}) // op=check_live|list_variants

	launchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "relay",
		Name:      "launch_failures_total",
		Help:      "Encoder launch attempts that failed",
	})
)

// SetRelayState marks state as the active one among all known states.
func SetRelayState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		relayState.WithLabelValues(s).Set(v)
	}
}

// RecordTransition counts a supervisor state change.
func RecordTransition(from, to string) {
	relayTransitions.WithLabelValues(from, to).Inc()
}

// IncRestart counts an encoder restart within a session.
func IncRestart(reason string) {
	relayRestarts.WithLabelValues(reason).Inc()
}

// IncSession counts a new relay session.
func IncSession() {
	relaySessions.Inc()
}

// ObserveStormBackoff records a storm guard delay in seconds.
func ObserveStormBackoff(seconds float64) {
	stormBackoff.Observe(seconds)
}

// IncProviderError counts a transient provider failure.
func IncProviderError(op string) {
	providerErrors.WithLabelValues(op).Inc()
}

// IncLaunchFailure counts a failed encoder launch attempt.
func IncLaunchFailure() {
	launchFailures.Inc()
}

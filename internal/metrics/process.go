// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encoderStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "encoder",
		Name:      "starts_total",
		Help:      "Encoder process start attempts by result",
	}, []string{"result"}) // result=ok|rejected|error

	encoderExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "encoder",
		Name:      "exits_total",
		Help:      "Encoder process exits by reason",
	}, []string{"reason"}) // reason=clean|crash|stopped

	encoderRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamrelay",
		Subsystem: "encoder",
		Name:      "running",
		Help:      "1 while an encoder process is tracked as running",
	})

	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "proc",
		Name:      "terminate_total",
		Help:      "Signals sent to encoder process groups",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamrelay",
		Subsystem: "proc",
		Name:      "wait_total",
		Help:      "Outcome of waiting for terminated process groups",
	}, []string{"outcome"})
)

// IncEncoderStart counts an encoder start attempt.
func IncEncoderStart(result string) {
	encoderStarts.WithLabelValues(result).Inc()
}

// IncEncoderExit counts an encoder exit.
func IncEncoderExit(reason string) {
	encoderExits.WithLabelValues(reason).Inc()
}

// SetEncoderRunning toggles the running gauge.
func SetEncoderRunning(running bool) {
	if running {
		encoderRunning.Set(1)
		return
	}
	encoderRunning.Set(0)
}

// IncProcTerminate counts a signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminate.WithLabelValues(signal, result).Inc()
}

// IncProcWait counts how a terminated process group finished.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}

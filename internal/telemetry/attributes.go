// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the relay.
const (
	// Relay attributes
	RelayChannelKey      = "relay.channel"
	RelaySessionKey      = "relay.session_id"
	RelayStateKey        = "relay.state"
	RelayOldStateKey     = "relay.old_state"
	RelayNewStateKey     = "relay.new_state"
	RelayReasonKey       = "relay.reason"
	RelayRestartCountKey = "relay.restart_count"

	// Stream attributes
	StreamVariantKey = "stream.variant"
	StreamOrdinalKey = "stream.ordinal"

	// Encoder attributes
	EncoderCodecKey       = "encoder.codec"
	EncoderConstrainedKey = "encoder.constrained"
	EncoderPIDKey         = "encoder.pid"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes creates attributes describing a relay session.
func SessionAttributes(channel, sessionID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if channel != "" {
		attrs = append(attrs, attribute.String(RelayChannelKey, channel))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(RelaySessionKey, sessionID))
	}
	return attrs
}

// TransitionAttributes creates attributes for a state transition event.
func TransitionAttributes(from, to, reason string, restarts int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RelayOldStateKey, from),
		attribute.String(RelayNewStateKey, to),
		attribute.Int(RelayRestartCountKey, restarts),
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(RelayReasonKey, reason))
	}
	return attrs
}

// VariantAttributes creates stream variant attributes.
func VariantAttributes(label string, ordinal int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StreamVariantKey, label),
		attribute.Int(StreamOrdinalKey, ordinal),
	}
}

// EncoderAttributes creates encoder process attributes.
func EncoderAttributes(codec string, constrained bool, pid int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EncoderCodecKey, codec),
		attribute.Bool(EncoderConstrainedKey, constrained),
		attribute.Int(EncoderPIDKey, pid),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func captureBase(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "debug", Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestContextWithSessionID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
		want string
	}{
		{name: "nil context", ctx: nil, id: "sess-1", want: "sess-1"},
		{name: "background context", ctx: context.Background(), id: "sess-2", want: "sess-2"},
		{name: "empty id", ctx: context.Background(), id: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithSessionID(tt.ctx, tt.id)
			assert.Equal(t, tt.want, stringValue(ctx, sessionIDKey))
		})
	}
}

func TestStringValue_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), sessionIDKey, 42)
	assert.Empty(t, stringValue(ctx, sessionIDKey))
	assert.Empty(t, stringValue(nil, sessionIDKey)) //nolint:staticcheck
}

func TestWithContext_AddsFields(t *testing.T) {
	buf := captureBase(t)

	ctx := ContextWithSessionID(context.Background(), "sess-42")
	ctx = ContextWithChannel(ctx, "somechannel")

	l := WithComponentFromContext(ctx, "relay")
	l.Info().Msg("hello")

	entry := decodeLine(t, buf)
	assert.Equal(t, "sess-42", entry[FieldSessionID])
	assert.Equal(t, "somechannel", entry[FieldChannel])
	assert.Equal(t, "relay", entry[FieldComponent])
	assert.Equal(t, "test", entry["service"])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	buf := captureBase(t)

	l := WithContext(context.Background(), WithComponent("x"))
	l.Info().Msg("plain")

	entry := decodeLine(t, buf)
	_, hasSession := entry[FieldSessionID]
	assert.False(t, hasSession)
}

func TestConfigure_LevelFromConfig(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "warn"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("lvl")
	l.Info().Msg("suppressed")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("visible")
	assert.NotZero(t, buf.Len())
}

func TestWithTraceContext(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		buf := captureBase(t)
		l := WithTraceContext(context.Background())
		l.Info().Msg("no trace")
		entry := decodeLine(t, buf)
		_, ok := entry["trace_id"]
		assert.False(t, ok)
	})

	t.Run("noop span", func(t *testing.T) {
		buf := captureBase(t)
		ctx, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "noop")
		defer span.End()
		l := WithTraceContext(ctx)
		l.Info().Msg("noop")
		entry := decodeLine(t, buf)
		_, ok := entry["trace_id"]
		assert.False(t, ok, "noop spans carry an invalid span context")
	})

	t.Run("valid span", func(t *testing.T) {
		buf := captureBase(t)
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		l := WithTraceContext(ctx)
		l.Info().Msg("with trace")

		entry := decodeLine(t, buf)
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	channelKey
)

// correlationFields maps context keys to the log field they populate, in
// output order.
var correlationFields = []struct {
	key   ctxKey
	field string
}{
	{sessionIDKey, FieldSessionID},
	{channelKey, FieldChannel},
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithSessionID tags ctx with the relay session ID.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

// ContextWithChannel tags ctx with the source channel.
func ContextWithChannel(ctx context.Context, channel string) context.Context {
	return withValue(ctx, channelKey, channel)
}

// WithContext adds the correlation fields found in ctx to logger. The logger
// is returned unchanged when ctx carries none.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	var lc *zerolog.Context
	for _, cf := range correlationFields {
		v := stringValue(ctx, cf.key)
		if v == "" {
			continue
		}
		if lc == nil {
			c := logger.With()
			lc = &c
		}
		*lc = lc.Str(cf.field, v)
	}
	if lc == nil {
		return logger
	}
	return lc.Logger()
}

// WithComponentFromContext is WithContext on a component logger.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

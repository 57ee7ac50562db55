// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// untracedPaths are polled by orchestrators and scrapers.
var untracedPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

func shouldTrace(r *http.Request) bool {
	_, skip := untracedPaths[r.URL.Path]
	return !skip
}

// OTelHTTP starts a server span per request using the global tracer
// provider. Probe and metrics paths are not traced.
func OTelHTTP(service string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(service,
		otelhttp.WithFilter(shouldTrace),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// AddSpanAttributes annotates the request span. It is a no-op when tracing
// is off.
func AddSpanAttributes(r *http.Request, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(r.Context()).SetAttributes(attrs...)
}

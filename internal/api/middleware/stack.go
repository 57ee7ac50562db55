// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware holds the HTTP middleware of the ops server.
package middleware

import "github.com/go-chi/chi/v5"

// StackConfig selects the optional layers of the middleware stack.
// Recoverer and RequestID are always installed.
type StackConfig struct {
	EnableSecurityHeaders bool
	EnableMetrics         bool
	EnableLogging         bool
	// TracingService names the server span; empty disables tracing.
	TracingService string
	// RateLimitPerMinute is per client IP; 0 disables limiting.
	RateLimitPerMinute int
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs the stack on r, outermost first.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer, RequestID)

	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders())
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(Logging)
	}
	if cfg.RateLimitPerMinute > 0 {
		r.Use(APIRateLimit(cfg.RateLimitPerMinute))
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
)

type rateLimitBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// RateLimit allows limit requests per window and client IP using a sliding
// window counter. Rejected requests get a JSON 429 with Retry-After.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rateLimitBody{
				Error:  "rate_limit_exceeded",
				Detail: "too many requests, retry later",
			})
		}),
	)
}

// APIRateLimit limits each client IP to perMinute requests.
func APIRateLimit(perMinute int) func(http.Handler) http.Handler {
	return RateLimit(perMinute, time.Minute)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestIDFromContext(r.Context())))
	})
}

func TestRequestID_AssignsAndPropagates(t *testing.T) {
	h := RequestID(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.Equal(t, id, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "upstream-id", rec.Body.String())
}

func TestRequestID_RejectsOversizedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	req.Header.Set(RequestIDHeader, string(long))

	rec := httptest.NewRecorder()
	RequestID(okHandler()).ServeHTTP(rec, req)
	assert.NotEqual(t, string(long), rec.Header().Get(RequestIDHeader))
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, opsCSP, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestAPIRateLimit_Returns429WithRetryAfter(t *testing.T) {
	h := APIRateLimit(1)(okHandler())

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)
	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
}

func TestShouldTrace(t *testing.T) {
	for path, want := range map[string]bool{
		"/healthz":       false,
		"/readyz":        false,
		"/metrics":       false,
		"/api/v1/status": true,
	} {
		assert.Equal(t, want, shouldTrace(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
}

func TestNewRouter_AppliesStack(t *testing.T) {
	r := NewRouter(StackConfig{EnableSecurityHeaders: true, EnableMetrics: true, EnableLogging: true})
	r.Get("/x", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRateLimit_RetryAfterFollowsWindow(t *testing.T) {
	h := RateLimit(1, 30*time.Second)(okHandler())
	var last *httptest.ResponseRecorder
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "30", last.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", last.Header().Get("Content-Type"))
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(httptest.NewRequest(http.MethodGet, "/nope", nil)))

	var got string
	r := chi.NewRouter()
	r.Get("/items/{id}", func(_ http.ResponseWriter, r *http.Request) { got = routeLabel(r) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, "/items/{id}", got)
}

func TestStatusRecorder_KeepsFirstStatus(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	_, _ = rec.Write([]byte("abc"))
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.status)
	assert.Equal(t, 3, rec.bytes)
}

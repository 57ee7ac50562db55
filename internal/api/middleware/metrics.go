// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamrelay_http_request_duration_seconds",
		Help:    "Latency of ops server requests.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamrelay_http_requests_in_flight",
		Help: "Ops server requests currently being served.",
	})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamrelay_http_response_size_bytes",
		Help:    "Size of ops server response bodies.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"method", "route"})
)

// Metrics records Prometheus request metrics labelled by chi route
// pattern. Unmatched paths share the "unmatched" label.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			httpRequestDuration.
				WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
			if rec.bytes > 0 {
				httpResponseSize.WithLabelValues(r.Method, route).Observe(float64(rec.bytes))
			}
		})
	}
}

// routeLabel must run after the router matched, otherwise the pattern is
// still empty.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusRecorder remembers the first status code and counts body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status, s.wroteHeader = code, true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate collects field-level configuration errors so a config
// can be rejected with every problem listed at once.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldError is one failed check.
type FieldError struct {
	Field   string
	Value   any
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError is every FieldError of one validation pass.
type ValidationError []FieldError

func (e ValidationError) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validator accumulates FieldErrors. The zero value is ready to use.
type Validator struct {
	errs ValidationError
}

// New returns an empty Validator.
func New() *Validator { return &Validator{} }

// AddError records a failed check.
func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, FieldError{Field: field, Value: value, Message: message})
}

func (v *Validator) check(ok bool, field string, value any, format string, args ...any) {
	if !ok {
		v.AddError(field, fmt.Sprintf(format, args...), value)
	}
}

// IsValid reports whether no check failed so far.
func (v *Validator) IsValid() bool { return len(v.errs) == 0 }

// Errors returns the failed checks in the order they ran.
func (v *Validator) Errors() []FieldError { return slices.Clone(v.errs) }

// Err returns nil or a ValidationError.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return slices.Clone(v.errs)
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	v.check(strings.TrimSpace(value) != "", field, value, "must not be empty")
}

// URL requires an absolute URL with a host and, when schemes is non-empty,
// one of those schemes.
func (v *Validator) URL(field, value string, schemes []string) {
	if value == "" {
		v.AddError(field, "must not be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(schemes) > 0 {
		v.check(slices.Contains(schemes, u.Scheme), field, value,
			"unsupported scheme %q (allowed: %s)", u.Scheme, strings.Join(schemes, ", "))
	}
}

// ListenAddr requires host:port with a port in 1..65535. The host may be
// empty to bind all interfaces.
func (v *Validator) ListenAddr(field, addr string) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(field, "port must be numeric", addr)
		return
	}
	v.check(port > 0 && port <= 65535, field, addr, "port must be between 1 and 65535, got %d", port)
}

// Range requires minVal <= value <= maxVal.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	v.check(value >= minVal && value <= maxVal, field, value,
		"must be between %d and %d, got %d", minVal, maxVal, value)
}

// FloatRange requires minVal <= value <= maxVal.
func (v *Validator) FloatRange(field string, value, minVal, maxVal float64) {
	v.check(value >= minVal && value <= maxVal, field, value,
		"must be between %g and %g, got %g", minVal, maxVal, value)
}

// Positive requires value > 0.
func (v *Validator) Positive(field string, value int) {
	v.check(value > 0, field, value, "must be positive, got %d", value)
}

// OneOf requires an exact match with one of allowed.
func (v *Validator) OneOf(field, value string, allowed []string) {
	v.check(slices.Contains(allowed, value), field, value,
		"must be one of %s, got %q", strings.Join(allowed, ", "), value)
}

// logLevels are the levels internal/log accepts.
var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// LogLevel accepts a log level name in any case.
func (v *Validator) LogLevel(field, value string) {
	v.check(slices.Contains(logLevels, strings.ToLower(strings.TrimSpace(value))), field, value,
		"invalid log level (must be one of %s)", strings.Join(logLevels, ", "))
}

// PositiveDuration requires d > 0.
func (v *Validator) PositiveDuration(field string, d time.Duration) {
	v.check(d > 0, field, d, "must be positive, got %s", d)
}

// DurationAtLeast requires d >= minVal.
func (v *Validator) DurationAtLeast(field string, d, minVal time.Duration) {
	v.check(d >= minVal, field, d, "must be at least %s, got %s", minVal, d)
}

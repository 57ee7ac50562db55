// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/streamrelay/internal/log"
)

// fromEnv returns the parsed value of key, or def when the variable is unset,
// empty or unparsable. Unparsable values are logged, never fatal: Validate
// rejects the resulting config if the default does not fit.
func fromEnv[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}

	logger := log.WithComponent("config")
	v, err := parse(raw)
	if err != nil {
		evt := logger.Warn().Str("key", key).Err(err)
		if !isSensitiveKey(key) {
			evt = evt.Str("value", raw)
		}
		evt.Msg("invalid environment value, keeping previous value")
		return def
	}

	evt := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitiveKey(key) {
		evt = evt.Bool("sensitive", true)
	} else {
		evt = evt.Str("value", raw)
	}
	evt.Msg("using environment variable")
	return v
}

// ParseString reads key from the environment, falling back to def.
func ParseString(key, def string) string {
	return fromEnv(key, def, func(s string) (string, error) { return s, nil })
}

// ParseInt reads an integer from the environment, falling back to def.
func ParseInt(key string, def int) int {
	return fromEnv(key, def, strconv.Atoi)
}

// ParseDuration reads a Go duration ("30s", "10h30m") from the environment.
func ParseDuration(key string, def time.Duration) time.Duration {
	return fromEnv(key, def, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(key string, def bool) bool {
	return fromEnv(key, def, parseBool)
}

// ParseFloat reads a float64 from the environment, falling back to def.
func ParseFloat(key string, def float64) float64 {
	return fromEnv(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", s)
	}
}

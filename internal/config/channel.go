// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ManuGH/streamrelay/internal/provider"
)

var loginPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,25}$`)

var channelHosts = map[string]bool{
	"twitch.tv":     true,
	"www.twitch.tv": true,
	"m.twitch.tv":   true,
}

// NormalizeChannel accepts a channel login or a channel page URL
// ("https://www.twitch.tv/name", "twitch.tv/name/") and returns the
// lower-cased login. With a custom urlTemplate the channel belongs to some
// other site, so it is only trimmed and passed through.
func NormalizeChannel(input, urlTemplate string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidChannel)
	}
	if urlTemplate != "" && urlTemplate != provider.DefaultURLTemplate {
		return s, nil
	}

	if strings.Contains(s, "/") || strings.Contains(s, ".") {
		raw := s
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidChannel, err)
		}
		if !channelHosts[strings.ToLower(u.Hostname())] {
			return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidChannel, u.Hostname())
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		s = segments[0]
	}

	if !loginPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q is not a channel login", ErrInvalidChannel, s)
	}
	return strings.ToLower(s), nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stream holds the source-stream model shared by providers and the
// relay supervisor: channel identifiers, quality variants and the rules for
// choosing between them.
package stream

import (
	"regexp"
	"strconv"
	"strings"
)

// ChannelID names the source channel. Opaque to everything but the provider.
type ChannelID string

func (c ChannelID) String() string { return string(c) }

// Variant is one available rendition of the live source. Variants are
// produced fresh on every poll and never mutated.
type Variant struct {
	Label     string `json:"label"`
	Ordinal   int    `json:"ordinal"`
	AudioOnly bool   `json:"audio_only"`
	URL       string `json:"-"`
}

func (v Variant) String() string {
	if v.Label == "" {
		return "<none>"
	}
	return v.Label
}

// labelPattern matches provider quality labels like "720p", "1080p60" or
// "1080p60_alt".
var labelPattern = regexp.MustCompile(`^(\d{2,4})p(\d{2,3})?`)

const defaultFPS = 30

// ParseLabel derives a rank from a provider quality label. Higher ordinals
// are better; height dominates frame rate. Aliases ("best", "worst") point at
// another concrete variant and are reported so callers can skip them.
// Unknown labels rank 0.
func ParseLabel(label string) (ordinal int, audioOnly bool, alias bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "best", "worst":
		return 0, false, true
	}
	if strings.Contains(l, "audio") {
		return 0, true, false
	}

	m := labelPattern.FindStringSubmatch(l)
	if m == nil {
		return 0, false, false
	}
	height, _ := strconv.Atoi(m[1])
	fps := defaultFPS
	if m[2] != "" {
		fps, _ = strconv.Atoi(m[2])
	}
	return height*1000 + fps, false, false
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package provider resolves whether a channel is live and which stream
// variants it currently offers.
package provider

import (
	"context"
	"fmt"

	"github.com/ManuGH/streamrelay/internal/stream"
)

// Liveness is the result of a live check.
type Liveness int

const (
	Offline Liveness = iota
	Online
)

func (l Liveness) String() string {
	if l == Online {
		return "online"
	}
	return "offline"
}

// Provider is the source of truth for channel liveness and variants.
// Implementations must return *TransientError for lookup failures so callers
// can tell them apart from an offline channel.
type Provider interface {
	CheckLive(ctx context.Context, channel stream.ChannelID) (Liveness, error)
	ListVariants(ctx context.Context, channel stream.ChannelID) ([]stream.Variant, error)
}

// TransientError is a lookup failure that says nothing about liveness.
type TransientError struct {
	Op      string
	Channel stream.ChannelID
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Op, e.Channel, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

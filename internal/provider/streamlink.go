// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/metrics"
	"github.com/ManuGH/streamrelay/internal/stream"
)

const (
	// DefaultURLTemplate maps a channel login to its page URL.
	DefaultURLTemplate = "https://www.twitch.tv/%s"

	defaultCacheTTL      = 5 * time.Second
	defaultLookupTimeout = 30 * time.Second
	offlineMarker        = "no playable streams found"
)

// StreamlinkConfig configures the streamlink-backed provider.
type StreamlinkConfig struct {
	Binary      string
	URLTemplate string
	CacheTTL    time.Duration
	Timeout     time.Duration
	// ExtraArgs are inserted before the URL, e.g. --twitch-disable-ads.
	ExtraArgs []string
}

// Streamlink implements Provider by running `streamlink --json`.
type Streamlink struct {
	cfg    StreamlinkConfig
	now    func() time.Time
	run    func(ctx context.Context, bin string, args ...string) (stdout, stderr []byte, err error)
	logger zerolog.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[stream.ChannelID]lookup
}

type lookup struct {
	at       time.Time
	live     Liveness
	variants []stream.Variant
}

type streamlinkOutput struct {
	Error   string                      `json:"error"`
	Plugin  string                      `json:"plugin"`
	Streams map[string]streamlinkStream `json:"streams"`
}

type streamlinkStream struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// NewStreamlink creates a provider. Zero values fall back to defaults.
func NewStreamlink(cfg StreamlinkConfig) *Streamlink {
	if cfg.Binary == "" {
		cfg.Binary = "streamlink"
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLookupTimeout
	}
	return &Streamlink{
		cfg:    cfg,
		now:    time.Now,
		run:    runCommand,
		logger: log.WithComponent("provider"),
		cache:  make(map[stream.ChannelID]lookup),
	}
}

// CheckLive reports whether channel currently has playable streams.
func (s *Streamlink) CheckLive(ctx context.Context, channel stream.ChannelID) (Liveness, error) {
	res, err := s.resolve(ctx, channel)
	if err != nil {
		metrics.IncProviderError("check_live")
		return Offline, &TransientError{Op: "check_live", Channel: channel, Err: err}
	}
	return res.live, nil
}

// ListVariants returns the video and audio variants of channel, aliases
// excluded. An offline channel yields an empty list.
func (s *Streamlink) ListVariants(ctx context.Context, channel stream.ChannelID) ([]stream.Variant, error) {
	res, err := s.resolve(ctx, channel)
	if err != nil {
		metrics.IncProviderError("list_variants")
		return nil, &TransientError{Op: "list_variants", Channel: channel, Err: err}
	}
	out := make([]stream.Variant, len(res.variants))
	copy(out, res.variants)
	return out, nil
}

func (s *Streamlink) resolve(ctx context.Context, channel stream.ChannelID) (lookup, error) {
	s.mu.Lock()
	if c, ok := s.cache[channel]; ok && s.now().Sub(c.at) < s.cfg.CacheTTL {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(string(channel), func() (interface{}, error) {
		res, err := s.fetch(ctx, channel)
		if err != nil {
			return lookup{}, err
		}
		s.mu.Lock()
		s.cache[channel] = res
		s.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return lookup{}, err
	}
	return v.(lookup), nil
}

func (s *Streamlink) fetch(ctx context.Context, channel stream.ChannelID) (lookup, error) {
	if channel == "" {
		return lookup{}, errors.New("empty channel")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := append([]string{"--json"}, s.cfg.ExtraArgs...)
	args = append(args, fmt.Sprintf(s.cfg.URLTemplate, channel))

	stdout, stderr, runErr := s.run(ctx, s.cfg.Binary, args...)

	var out streamlinkOutput
	decodeErr := json.Unmarshal(bytes.TrimSpace(stdout), &out)

	if isOfflineMessage(out.Error) || (runErr != nil && isOfflineMessage(string(stderr))) {
		s.logger.Debug().Str(log.FieldChannel, string(channel)).Msg("no playable streams")
		return lookup{at: s.now(), live: Offline}, nil
	}
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return lookup{}, fmt.Errorf("streamlink: %w", ctxErr)
		}
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(stderr))
		}
		return lookup{}, fmt.Errorf("streamlink: %w: %s", runErr, msg)
	}
	if decodeErr != nil {
		return lookup{}, fmt.Errorf("decode streamlink output: %w", decodeErr)
	}
	if out.Error != "" {
		return lookup{}, fmt.Errorf("streamlink: %s", out.Error)
	}

	variants := variantsFrom(out.Streams)
	live := Offline
	if len(variants) > 0 {
		live = Online
	}
	return lookup{at: s.now(), live: live, variants: variants}, nil
}

func variantsFrom(streams map[string]streamlinkStream) []stream.Variant {
	variants := make([]stream.Variant, 0, len(streams))
	for label, st := range streams {
		ordinal, audioOnly, alias := stream.ParseLabel(label)
		if alias || st.URL == "" {
			continue
		}
		variants = append(variants, stream.Variant{
			Label:     label,
			Ordinal:   ordinal,
			AudioOnly: audioOnly,
			URL:       st.URL,
		})
	}
	sort.Slice(variants, func(i, j int) bool {
		if variants[i].Ordinal != variants[j].Ordinal {
			return variants[i].Ordinal < variants[j].Ordinal
		}
		return variants[i].Label < variants[j].Label
	})
	return variants
}

func isOfflineMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), offlineMarker)
}

func runCommand(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- binary from config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

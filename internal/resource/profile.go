// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resource inspects host capability once at startup and derives the
// encoder configuration the relay runs with.
package resource

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ManuGH/streamrelay/internal/log"
)

// Encoder is the video encoder the relay asks ffmpeg to use.
type Encoder string

const (
	EncoderAuto     Encoder = "auto"
	EncoderSoftware Encoder = "software"
	EncoderNVENC    Encoder = "nvenc"
	EncoderAMF      Encoder = "amf"
	EncoderQSV      Encoder = "qsv"
)

// ParseEncoder maps a config value onto an Encoder.
func ParseEncoder(s string) (Encoder, error) {
	switch e := Encoder(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EncoderAuto, nil
	case EncoderAuto, EncoderSoftware, EncoderNVENC, EncoderAMF, EncoderQSV:
		return e, nil
	default:
		return "", fmt.Errorf("unknown encoder %q (supported: auto, software, nvenc, amf, qsv)", s)
	}
}

// Codec returns the ffmpeg -c:v value. Software means stream copy: the relay
// never transcodes on the CPU.
func (e Encoder) Codec() string {
	switch e {
	case EncoderNVENC:
		return "h264_nvenc"
	case EncoderAMF:
		return "h264_amf"
	case EncoderQSV:
		return "h264_qsv"
	default:
		return "copy"
	}
}

const (
	lowCPUThreshold   = 2
	lowMemoryBytes    = 4 << 30
	fallbackMemory    = 8 << 30
	constrainedBuffer = 2 << 20
	probeTimeout      = 5 * time.Second
)

// EncodingProfile is computed once at startup and never changes.
type EncodingProfile struct {
	CPUThreads       int     `json:"cpu_threads"`
	BufferSizeBytes  int     `json:"buffer_size_bytes"`
	PreferredEncoder Encoder `json:"preferred_encoder"`
	// Constrained is set on hosts with few cores or little RAM; the encoder
	// then gets explicit thread and buffer limits.
	Constrained bool   `json:"constrained"`
	MemoryBytes uint64 `json:"memory_bytes"`
}

// Profiler gathers host facts. The probe functions are swappable for tests;
// New wires the real ones.
type Profiler struct {
	NumCPU      func() int
	TotalMemory func(ctx context.Context) (uint64, error)
	Encoders    func(ctx context.Context) (string, error)

	// Override skips GPU probing when set to anything but auto.
	Override Encoder
	logger   zerolog.Logger
}

// New returns a Profiler reading the real host. ffmpegBin is used to list
// compiled-in encoders.
func New(ffmpegBin string, override Encoder) *Profiler {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &Profiler{
		NumCPU:      runtime.NumCPU,
		TotalMemory: totalMemory,
		Encoders: func(ctx context.Context) (string, error) {
			return listEncoders(ctx, ffmpegBin)
		},
		Override: override,
		logger:   log.WithComponent("resource"),
	}
}

// Profile inspects the host. It never fails: anything inconclusive falls
// back to conservative software defaults.
func (p *Profiler) Profile(ctx context.Context) EncodingProfile {
	cores := 1
	if p.NumCPU != nil {
		if n := p.NumCPU(); n > 0 {
			cores = n
		}
	}

	memBytes := uint64(fallbackMemory)
	if p.TotalMemory != nil {
		if total, err := p.TotalMemory(ctx); err == nil && total > 0 {
			memBytes = total
		} else {
			p.logger.Debug().Err(err).Msg("memory probe failed, assuming 8GiB")
		}
	}

	prof := EncodingProfile{
		CPUThreads:       cores,
		PreferredEncoder: p.detectEncoder(ctx),
		Constrained:      cores <= lowCPUThreshold || memBytes <= lowMemoryBytes,
		MemoryBytes:      memBytes,
	}
	if prof.Constrained {
		prof.BufferSizeBytes = constrainedBuffer
	}

	p.logger.Info().
		Int("cpu_threads", prof.CPUThreads).
		Float64("memory_gb", float64(memBytes)/(1<<30)).
		Str(log.FieldEncoder, string(prof.PreferredEncoder)).
		Bool("constrained", prof.Constrained).
		Msg("encoding profile detected")
	return prof
}

func (p *Profiler) detectEncoder(ctx context.Context) Encoder {
	if p.Override != "" && p.Override != EncoderAuto {
		return p.Override
	}
	if p.Encoders == nil {
		return EncoderSoftware
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := p.Encoders(probeCtx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("encoder probe failed, using software path")
		return EncoderSoftware
	}
	return pickEncoder(out)
}

// pickEncoder chooses from `ffmpeg -encoders` output. NVENC is preferred,
// then AMF, then QSV.
func pickEncoder(encoderList string) Encoder {
	out := strings.ToLower(encoderList)
	for _, e := range []Encoder{EncoderNVENC, EncoderAMF, EncoderQSV} {
		if strings.Contains(out, e.Codec()) {
			return e
		}
	}
	return EncoderSoftware
}

func totalMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

func listEncoders(ctx context.Context, bin string) (string, error) {
	// #nosec G204 -- bin is trusted from config
	out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-encoders").Output()
	if err != nil {
		return "", fmt.Errorf("%s -encoders: %w", bin, err)
	}
	return string(out), nil
}

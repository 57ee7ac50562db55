// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"errors"
	"strconv"

	"github.com/ManuGH/streamrelay/internal/resource"
	"github.com/ManuGH/streamrelay/internal/stream"
)

// BuildArgs renders the ffmpeg argument list for relaying variant to
// destination. Video is passed through (or handed to a GPU encoder); audio is
// normalised to AAC stereo which FLV ingest endpoints expect.
func BuildArgs(variant stream.Variant, profile resource.EncodingProfile, destination string) ([]string, error) {
	if variant.URL == "" {
		return nil, errors.New("variant has no source URL")
	}
	if destination == "" {
		return nil, errors.New("destination is empty")
	}

	args := []string{
		"-nostats",
		"-loglevel", "warning",
		"-re",
		"-i", variant.URL,
		"-c:v", profile.PreferredEncoder.Codec(),
		"-c:a", "aac",
		"-ar", "44100",
		"-b:a", "128k",
		"-ac", "2",
	}

	if profile.Constrained {
		threads := profile.CPUThreads
		if threads < 1 {
			threads = 1
		}
		args = append(args, "-threads", strconv.Itoa(threads))
		if profile.BufferSizeBytes > 0 {
			args = append(args, "-bufsize", strconv.Itoa(profile.BufferSizeBytes))
		}
		args = append(args, "-fflags", "+genpts")
	}

	args = append(args, "-f", "flv", destination)
	return args, nil
}

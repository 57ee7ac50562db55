// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/ManuGH/streamrelay/internal/config"
	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/resource"
)

func runProfileCLI(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("relayd profile", flag.ContinueOnError)
	flags.SetOutput(stderr)
	ffmpegBin := flags.String("ffmpeg", config.ParseString("RELAY_FFMPEG_BIN", "ffmpeg"), "ffmpeg binary used for encoder detection")
	enc := flags.String("encoder", config.ParseString("RELAY_ENCODER", string(resource.EncoderAuto)), "encoder override")
	asJSON := flags.Bool("json", false, "print JSON")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	override, err := resource.ParseEncoder(*enc)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	xglog.Configure(xglog.Config{Level: "warn", Output: stderr, Service: "relayd"})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	prof := resource.New(*ffmpegBin, override).Profile(ctx)
	return printProfile(stdout, stderr, prof, *asJSON)
}

func printProfile(stdout, stderr io.Writer, prof resource.EncodingProfile, asJSON bool) int {
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(prof); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stdout, "encoder:     %s (%s)\n", prof.PreferredEncoder, prof.PreferredEncoder.Codec())
	fmt.Fprintf(stdout, "cpu threads: %d\n", prof.CPUThreads)
	fmt.Fprintf(stdout, "memory:      %.1f GiB\n", float64(prof.MemoryBytes)/(1<<30))
	fmt.Fprintf(stdout, "constrained: %t\n", prof.Constrained)
	if prof.BufferSizeBytes > 0 {
		fmt.Fprintf(stdout, "buffer:      %d KiB\n", prof.BufferSizeBytes>>10)
	}
	return 0
}

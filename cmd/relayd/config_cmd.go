// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/resource"
)

const defaultConfigFile = "relay.yaml"

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "init":
		return runConfigInit(args[1:], stdout, stderr)
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "show":
		return runConfigShow(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  relayd config init -channel <login|url> -stream-key <key> [-file relay.yaml] [-encoder auto] [-force]")
	fmt.Fprintln(w, "  relayd config validate [-file relay.yaml]")
	fmt.Fprintln(w, "  relayd config show [-file relay.yaml] [-format yaml|json]")
}

func defaultPath() string {
	return config.ParseString(envConfigPath, defaultConfigFile)
}

func runConfigInit(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("relayd config init", flag.ContinueOnError)
	flags.SetOutput(stderr)

	file := flags.String("file", defaultPath(), "path to write")
	channel := flags.String("channel", "", "channel login or URL")
	streamKey := flags.String("stream-key", "", "destination stream key")
	ingest := flags.String("ingest-url", config.DefaultIngestURL, "RTMP(S) ingest base URL")
	enc := flags.String("encoder", string(resource.EncoderAuto), "encoder: auto, software, nvenc, amf, qsv")
	force := flags.Bool("force", false, "overwrite an existing file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if strings.TrimSpace(*channel) == "" || strings.TrimSpace(*streamKey) == "" {
		fmt.Fprintln(stderr, "Error: -channel and -stream-key are required")
		return 2
	}

	if !*force {
		if _, err := os.Stat(*file); err == nil {
			fmt.Fprintf(stderr, "Error: %s already exists (use -force to overwrite)\n", *file)
			return 1
		} else if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	cfg := config.Defaults()
	login, err := config.NormalizeChannel(*channel, cfg.Streamlink.URLTemplate)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg.Channel = login
	cfg.Destination.StreamKey = strings.TrimSpace(*streamKey)
	cfg.Destination.IngestURL = strings.TrimSpace(*ingest)
	cfg.FFmpeg.Encoder = strings.ToLower(strings.TrimSpace(*enc))

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := config.Save(*file, cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "wrote %s for channel %s\n", *file, login)
	return 0
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("relayd config validate", flag.ContinueOnError)
	flags.SetOutput(stderr)
	file := flags.String("file", defaultPath(), "path to configuration file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if _, err := config.Load(*file); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", *file, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s is valid\n", *file)
	return 0
}

func runConfigShow(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("relayd config show", flag.ContinueOnError)
	flags.SetOutput(stderr)
	file := flags.String("file", defaultPath(), "path to configuration file")
	format := flags.String("format", "yaml", "output format: yaml or json")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*file)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", *file, err)
		return 1
	}
	masked := config.MaskSecrets(cfg)

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(masked); err != nil {
			fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(masked); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", *format)
		return 2
	}
}

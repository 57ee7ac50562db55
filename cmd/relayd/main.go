// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// relayd keeps a Twitch channel relayed to a YouTube ingest endpoint.
//
// Usage:
//
//	relayd [run] [-config relay.yaml]
//	relayd config init -channel <login|url> -stream-key <key> [-file relay.yaml]
//	relayd config validate|show [-file relay.yaml]
//	relayd profile
//	relayd healthcheck [-mode ready|live]
//
// Exit codes:
//   - 0: clean shutdown
//   - 1: configuration error or encoder launch retries exhausted
//   - 2: usage error
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/daemon"
	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/ManuGH/streamrelay/internal/version"
)

const envConfigPath = "RELAY_CONFIG"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			return runConfigCLI(args[1:], stdout, stderr)
		case "profile":
			return runProfileCLI(args[1:], stdout, stderr)
		case "healthcheck":
			return runHealthcheckCLI(args[1:], stdout, stderr)
		case "run":
			args = args[1:]
		}
	}

	fs := flag.NewFlagSet("relayd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", config.ParseString(envConfigPath, ""), "path to config file (YAML or JSON); empty reads the environment only")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Output:  stderr,
		Service: "relayd",
		Version: version.Version,
	})
	logger := xglog.WithComponent("main")

	path := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str(xglog.FieldPath, path).
			Msg("failed to load configuration")
		return 1
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  stderr,
		Service: "relayd",
		Version: version.Version,
	})
	logger = xglog.WithComponent("main")
	logger.Info().
		Str("event", "config.loaded").
		Str(xglog.FieldPath, path).
		Str("setup", daemon.Describe(cfg)).
		Msg("configuration loaded")

	ctx, stop := daemon.WaitForShutdown()
	defer stop()

	return exitCode(runDaemon(ctx, cfg), stderr)
}

func runDaemon(ctx context.Context, cfg config.AppConfig) error {
	d, err := daemon.New(ctx, cfg, daemon.Options{Version: version.Version})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

// exitCode maps the daemon result to the process exit status.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	logger := xglog.WithComponent("main")

	var cfgErr *config.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		logger.Error().Err(err).Str("event", "config.invalid").Msg("configuration error")
	case errors.Is(err, relay.ErrLaunchExhausted):
		logger.Error().Err(err).Str("event", "relay.launch_exhausted").Msg("encoder could not be started")
	default:
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("relay daemon failed")
	}
	fmt.Fprintf(stderr, "relayd: %v\n", err)
	return 1
}

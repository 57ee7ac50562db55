// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/streamrelay/internal/config"
)

// runHealthcheckCLI probes the local ops server, for container health checks.
func runHealthcheckCLI(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("relayd healthcheck", flag.ContinueOnError)
	flags.SetOutput(stderr)
	mode := flags.String("mode", "ready", "healthcheck mode: ready (default) or live")
	addr := flags.String("addr", config.ParseString("RELAY_HEALTHCHECK_ADDR", "http://localhost:9810"), "ops server base URL")
	timeout := flags.Duration("timeout", 5*time.Second, "check timeout")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	path := "/healthz"
	if *mode == "ready" {
		path = "/readyz"
	}

	client := http.Client{Timeout: *timeout}
	resp, err := client.Get(*addr + path)
	if err != nil {
		fmt.Fprintf(stderr, "Healthcheck failed (network): %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Healthcheck failed (status): %s\n", resp.Status)
		return 1
	}

	fmt.Fprintf(stdout, "Healthcheck successful (%s)\n", *mode)
	return 0
}

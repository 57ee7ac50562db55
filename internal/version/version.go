// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package version holds build metadata injected via ldflags.
package version

import "fmt"

var (
	// Version is the release tag, set with -ldflags "-X .../version.Version=v0.3.0".
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String returns a one-line build description.
func String() string {
	return fmt.Sprintf("relayd %s (commit %s, built %s)", Version, Commit, Date)
}

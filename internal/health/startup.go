// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/log"
)

// PerformStartupChecks verifies the external tools are present before the
// supervisor starts.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	for _, c := range []Checker{
		NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin),
		NewBinaryChecker("streamlink", cfg.Streamlink.Bin),
	} {
		res := c.Check(ctx)
		if res.Status == StatusUnhealthy {
			return &config.ConfigurationError{
				Path: c.Name() + ".bin",
				Err:  fmt.Errorf("%s not usable: %s", c.Name(), res.Error),
			}
		}
		logger.Debug().Str("check", c.Name()).Str("path", res.Message).Msg("startup check passed")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

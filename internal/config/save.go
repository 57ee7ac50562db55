// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Save writes cfg to path as YAML. The file holds the stream key, so it is
// created 0600 and replaced atomically.
func Save(path string, cfg AppConfig) (err error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	// renameio handles: temp file creation, fsync, atomic rename, cleanup on error
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() {
		if cerr := pendingFile.Cleanup(); cerr != nil && err == nil {
			err = fmt.Errorf("cleanup pending config file: %w", cerr)
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write config data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace config file: %w", err)
	}
	return nil
}

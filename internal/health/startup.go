// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"fmt"
	"os"

	"github.com/ManuGH/bigeye/internal/config"
	"github.com/ManuGH/bigeye/internal/log"
)

// PerformStartupChecks validates the host before the element is created.
// A missing capture node is not fatal: the camera may be plugged in later.
func PerformStartupChecks(cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDir(cfg.Device.SysfsRoot); err != nil {
		return fmt.Errorf("sysfs root check failed: %w", err)
	}
	if err := checkDir(cfg.Device.DevDir); err != nil {
		return fmt.Errorf("device directory check failed: %w", err)
	}

	if cfg.Device.Path != "" {
		if err := checkDeviceNode(cfg.Device.Path); err != nil {
			logger.Warn().
				Err(err).
				Str("event", "startup.device_node").
				Str("device", cfg.Device.Path).
				Msg("configured device node is not usable yet")
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}

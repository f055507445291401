// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/bigeye/internal/config"
)

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Device.SysfsRoot = t.TempDir()
	cfg.Device.DevDir = t.TempDir()
	cfg.Device.Path = filepath.Join(cfg.Device.DevDir, "video0")
	require.NoError(t, PerformStartupChecks(cfg), "missing node only warns")

	cfg.Device.SysfsRoot = filepath.Join(cfg.Device.DevDir, "absent")
	assert.ErrorContains(t, PerformStartupChecks(cfg), "sysfs root")
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ManuGH/bigeye/internal/element"
)

// ElementChecker reports healthy only while the element is streaming.
type ElementChecker struct {
	src ElementSource
}

func NewElementChecker(src ElementSource) *ElementChecker {
	return &ElementChecker{src: src}
}

func (c *ElementChecker) Name() string {
	return "element"
}

// Check reads one status snapshot. Streaming with a growing drop count is still
// healthy; drops are visible in the report and in metrics.
func (c *ElementChecker) Check(_ context.Context) CheckResult {
	st := c.src.Status()
	switch st.State {
	case element.StateStreaming:
		return CheckResult{Status: StatusHealthy, Message: "streaming " + st.Format}
	case element.StateError:
		return CheckResult{Status: StatusUnhealthy, Message: "error; reset required", Error: st.LastError}
	default:
		return CheckResult{Status: StatusUnhealthy, Message: "not streaming: " + string(st.State)}
	}
}

// DeviceNodeChecker checks that a capture node exists, is a character device
// and is accessible for read and write.
type DeviceNodeChecker struct {
	path string
}

func NewDeviceNodeChecker(path string) *DeviceNodeChecker {
	return &DeviceNodeChecker{path: path}
}

func (c *DeviceNodeChecker) Name() string {
	return "device_node"
}

func (c *DeviceNodeChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not configured (selected by enumeration)",
		}
	}
	if err := checkDeviceNode(c.path); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.path,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}

func checkDeviceNode(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("device node not found: %s", path)
		}
		return err
	}
	if info.Mode()&fs.ModeCharDevice == 0 {
		return fmt.Errorf("not a character device: %s", path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("no read/write access to %s (add the user to the video group or install a udev rule): %w", path, err)
	}
	return nil
}

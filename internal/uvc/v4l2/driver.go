// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package v4l2

import (
	"time"

	"github.com/ManuGH/bigeye/internal/uvc"
)

const (
	defaultWaitTimeout = 2 * time.Second
	defaultBuffers     = 4
)

// Config tunes the backend. Zero values select defaults.
type Config struct {
	SysfsRoot string
	DevDir    string
	// WaitTimeout bounds one wait for a frame. V4L2 waits have second granularity.
	WaitTimeout time.Duration
	// Buffers is the number of mmap buffers requested from the driver.
	Buffers uint32
}

// Driver is the V4L2 uvc.Driver.
type Driver struct {
	Enumerator
	wait    uint32
	buffers uint32
}

var _ uvc.Driver = (*Driver)(nil)

// New returns a Driver for cfg.
func New(cfg Config) *Driver {
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = defaultWaitTimeout
	}
	secs := uint32((wait + time.Second - 1) / time.Second)
	buffers := cfg.Buffers
	if buffers == 0 {
		buffers = defaultBuffers
	}
	return &Driver{
		Enumerator: Enumerator{SysfsRoot: cfg.SysfsRoot, DevDir: cfg.DevDir},
		wait:       secs,
		buffers:    buffers,
	}
}

func (d *Driver) Name() string { return "v4l2" }

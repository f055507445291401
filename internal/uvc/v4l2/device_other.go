// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !linux

package v4l2

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/bigeye/internal/uvc"
)

func (d *Driver) Open(_ context.Context, desc uvc.DeviceDescriptor) (uvc.Device, error) {
	return nil, fmt.Errorf("open %s: %w", desc, errors.ErrUnsupported)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uvc

import (
	"context"
	"time"
)

// Transfer is one completed frame transfer. Data is owned by the receiver.
// Captured is the capture-clock offset of the frame; zero means the driver has no
// clock and the receiver stamps the frame on arrival.
type Transfer struct {
	Data     []byte
	Captured time.Duration
}

// Callback receives completed transfers on a driver-owned goroutine. A non-nil
// error reports a transport failure; no further transfers follow it.
type Callback func(Transfer, error)

// Enumerator lists the cameras currently attached.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]DeviceDescriptor, error)
}

// Driver is the native capture library the element wraps.
type Driver interface {
	Enumerator
	// Name identifies the backend in logs.
	Name() string
	// Open opens and exclusively claims the video-streaming interface.
	Open(ctx context.Context, dev DeviceDescriptor) (Device, error)
}

// Device is one opened camera.
type Device interface {
	// Formats lists advertised formats in device-reported order.
	Formats() ([]StreamFormat, error)
	// Start begins streaming format and invokes cb for every completed transfer.
	Start(format StreamFormat, cb Callback) error
	// Stop ends streaming. It returns after the last callback invocation returned.
	Stop() error
	// Close releases the interface and the connection.
	Close() error
}

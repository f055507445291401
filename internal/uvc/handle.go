// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/metrics"
)

// Handle owns the open connection to one physical camera. It is the only path to
// the underlying Device; Close always releases the claim.
type Handle struct {
	desc   DeviceDescriptor
	dev    Device
	logger zerolog.Logger

	mu        sync.Mutex
	closed    bool
	streaming bool
}

// Open opens and claims dev through drv. The returned error is a *DeviceError whose
// kind is ErrNotFound, ErrAccessDenied or ErrBusy.
func Open(ctx context.Context, drv Driver, desc DeviceDescriptor) (*Handle, error) {
	logger := xlog.WithComponentFromContext(ctx, "uvc")
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", desc, err)
	}

	dev, err := drv.Open(ctx, desc)
	if err != nil {
		kind := ClassifyOpen(err)
		metrics.IncDeviceError("open", KindLabel(kind))
		derr := NewDeviceError("open", desc, kind, err)
		logger.Warn().
			Err(derr).
			Str(xlog.FieldEvent, "uvc.open_failed").
			Str(xlog.FieldDevice, desc.String()).
			Str(xlog.FieldBackend, drv.Name()).
			Str(xlog.FieldErrorKind, KindLabel(kind)).
			Msg("device open failed")
		return nil, derr
	}

	logger.Info().
		Str(xlog.FieldEvent, "uvc.opened").
		Str(xlog.FieldDevice, desc.String()).
		Str(xlog.FieldBackend, drv.Name()).
		Msg("device opened")
	return &Handle{desc: desc, dev: dev, logger: logger}, nil
}

// Descriptor returns the identity of the opened device.
func (h *Handle) Descriptor() DeviceDescriptor {
	return h.desc
}

// QueryFormats returns the advertised formats in device-reported order. It does not
// touch the streaming state.
func (h *Handle) QueryFormats() ([]StreamFormat, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, NewDeviceError("query formats", h.desc, ErrClosed, nil)
	}

	formats, err := h.dev.Formats()
	if err != nil {
		kind := ClassifyStream(err)
		metrics.IncDeviceError("query_formats", KindLabel(kind))
		return nil, NewDeviceError("query formats", h.desc, kind, err)
	}
	out := make([]StreamFormat, len(formats))
	copy(out, formats)
	return out, nil
}

// Stream starts the device delivering format to cb. A closed handle reports
// ErrDeviceGone.
func (h *Handle) Stream(format StreamFormat, cb Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return NewDeviceError("stream", h.desc, ErrDeviceGone, ErrClosed)
	}
	if h.streaming {
		return NewDeviceError("stream", h.desc, ErrBusy, fmt.Errorf("already streaming"))
	}
	if err := h.dev.Start(format, cb); err != nil {
		kind := ClassifyStream(err)
		metrics.IncDeviceError("stream", KindLabel(kind))
		return NewDeviceError("stream "+format.String(), h.desc, kind, err)
	}
	h.streaming = true
	return nil
}

// StopStream stops streaming. It returns after the last callback returned and is a
// no-op when not streaming.
func (h *Handle) StopStream() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *Handle) stopLocked() error {
	if !h.streaming {
		return nil
	}
	h.streaming = false
	if err := h.dev.Stop(); err != nil {
		return NewDeviceError("stop stream", h.desc, ClassifyStream(err), err)
	}
	return nil
}

// Close stops any stream and releases the device. It is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	stopErr := h.stopLocked()
	closeErr := h.dev.Close()

	h.logger.Info().
		Str(xlog.FieldEvent, "uvc.closed").
		Str(xlog.FieldDevice, h.desc.String()).
		Msg("device closed")

	if stopErr != nil {
		return stopErr
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", h.desc, closeErr)
	}
	return nil
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

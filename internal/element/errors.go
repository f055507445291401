// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package element

import "errors"

var (
	// ErrInvalidTarget rejects a state change request that cannot be walked.
	ErrInvalidTarget = errors.New("invalid target state")
	// ErrNeedsReset is returned for any state change from Error except to stopped.
	ErrNeedsReset = errors.New("element in error state, reset required")
	// ErrNotStreaming is returned by Create outside Streaming.
	ErrNotStreaming = errors.New("element not streaming")
	// ErrNoFormat is returned by Caps before negotiation.
	ErrNoFormat = errors.New("stream format not negotiated")
	// ErrNoDevice is returned by Formats before the device is open.
	ErrNoDevice = errors.New("device not open")
	// ErrSinkFlushing is returned by a Sink refusing buffers while flushing.
	ErrSinkFlushing = errors.New("sink flushing")
	// ErrSinkEOS is returned by a Sink that reached end of stream.
	ErrSinkEOS = errors.New("sink end of stream")
)

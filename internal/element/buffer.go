// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package element

import (
	"context"
	"time"

	"github.com/ManuGH/bigeye/internal/uvc"
)

// Buffer is one frame as the pipeline sees it.
type Buffer struct {
	Data []byte
	// PTS is relative to the first frame of the session.
	PTS      time.Duration
	Duration time.Duration
	// Offset is the frame sequence number.
	Offset uint64
	// Discont marks the first buffer of a session and any sequence gap.
	Discont bool
	Format  uvc.StreamFormat
}

// Sink receives buffers in push mode. PushBuffer runs on the element's output
// goroutine. ErrSinkFlushing drops the buffer and output continues; ErrSinkEOS
// stops pushing, while device loss is still watched.
type Sink interface {
	PushBuffer(ctx context.Context, buf Buffer) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, buf Buffer) error

func (f SinkFunc) PushBuffer(ctx context.Context, buf Buffer) error { return f(ctx, buf) }

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package element

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/capture"
	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/metrics"
)

type outputRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// sessionClock turns capture offsets into PTS relative to the first frame and
// tracks sequence gaps.
type sessionClock struct {
	mu      sync.Mutex
	started bool
	base    time.Duration
	lastSeq uint64
}

func (c *sessionClock) reset() {
	c.mu.Lock()
	c.started = false
	c.base = 0
	c.lastSeq = 0
	c.mu.Unlock()
}

func (c *sessionClock) stamp(f capture.Frame) (pts time.Duration, discont bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		c.started = true
		c.base = f.Captured
		c.lastSeq = f.Seq
		return 0, true
	}
	discont = f.Seq != c.lastSeq+1
	c.lastSeq = f.Seq
	pts = f.Captured - c.base
	if pts < 0 {
		pts = 0
	}
	return pts, discont
}

func (e *Element) wrap(f capture.Frame) Buffer {
	format := e.currentFormat()
	pts, discont := e.clock.stamp(f)
	return Buffer{
		Data:     f.Data,
		PTS:      pts,
		Duration: format.Interval.Duration(),
		Offset:   f.Seq,
		Discont:  discont,
		Format:   format,
	}
}

func (e *Element) startOutput(session string, gone <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &outputRun{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.out = run
	e.mu.Unlock()

	e.bg.Add(1)
	go e.run(ctx, session, gone, run.done)
}

func (e *Element) stopOutput() {
	e.mu.Lock()
	run := e.out
	e.out = nil
	e.mu.Unlock()
	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}

// run is the streaming goroutine. With a sink it pops frames and pushes buffers
// until the sink reports end of stream; after that, or without a sink, it only
// watches for device loss. The loss signal is checked once per pop timeout.
func (e *Element) run(ctx context.Context, session string, gone <-chan error, done chan<- struct{}) {
	defer e.bg.Done()
	defer close(done)

	logger := e.logger.With().Str(xlog.FieldSessionID, session).Logger()
	eos := false
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-gone:
			e.failAsync(session, err)
			return
		default:
		}

		if e.sink == nil || eos {
			select {
			case <-ctx.Done():
				return
			case err := <-gone:
				e.failAsync(session, err)
				return
			}
		}

		f, err := e.queue.Pop(ctx, e.cfg.PopTimeout)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrFlushing):
			// Unlocked by the host; idle until re-armed or stopped.
			if !sleepCtx(ctx, e.cfg.PopTimeout) {
				return
			}
			continue
		default:
			continue
		}
		metrics.SetQueueDepth(e.cfg.Name, e.queue.Len())

		buf := e.wrap(f)
		err = e.sink.PushBuffer(ctx, buf)
		switch {
		case err == nil:
			metrics.IncFrameEmitted(e.cfg.Name)
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrSinkEOS):
			logger.Info().Str(xlog.FieldEvent, "element.sink_eos").Msg("sink reached end of stream, output stopped")
			eos = true
		case errors.Is(err, ErrSinkFlushing):
			metrics.IncFrameDropped(e.cfg.Name, "sink_flushing")
		default:
			metrics.IncFrameDropped(e.cfg.Name, "sink_error")
			e.sinkWarn.Do(func() {
				logger.Warn().Err(err).
					Str(xlog.FieldEvent, "element.sink_error").
					Uint64(xlog.FieldSeq, buf.Offset).
					Msg("sink rejected buffer")
				e.publish(bus.Message{Kind: bus.KindWarning, Err: err, Session: session})
			})
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Create returns the next buffer for hosts that pull instead of providing a Sink.
// It blocks until a frame arrives, the queue is unlocked (capture.ErrFlushing),
// the element leaves Streaming or ctx is done. In Error it returns the device error.
func (e *Element) Create(ctx context.Context) (Buffer, error) {
	for {
		switch e.State() {
		case StateStreaming:
		case StateError:
			return Buffer{}, e.LastError()
		default:
			return Buffer{}, ErrNotStreaming
		}

		f, err := e.queue.Pop(ctx, e.cfg.PopTimeout)
		switch {
		case err == nil:
			metrics.SetQueueDepth(e.cfg.Name, e.queue.Len())
			metrics.IncFrameEmitted(e.cfg.Name)
			return e.wrap(f), nil
		case errors.Is(err, capture.ErrEmpty):
			continue
		case errors.Is(err, capture.ErrFlushing):
			if e.State() == StateError {
				return Buffer{}, e.LastError()
			}
			return Buffer{}, err
		default:
			return Buffer{}, err
		}
	}
}

// Unlock interrupts a blocked Create and makes further calls return
// capture.ErrFlushing until UnlockStop.
func (e *Element) Unlock() {
	e.queue.SetFlushing(true)
}

// UnlockStop re-arms the queue after Unlock. Outside Streaming it is a no-op.
func (e *Element) UnlockStop() {
	e.transMu.Lock()
	defer e.transMu.Unlock()
	if e.machine.State() == StateStreaming {
		e.queue.SetFlushing(false)
	}
}

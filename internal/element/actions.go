// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package element

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/capture"
	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/negotiate"
	"github.com/ManuGH/bigeye/internal/uvc"
)

// Transition actions. Each runs with transMu held; a returned error leaves the
// state unchanged, so actions undo their own partial work.

func (e *Element) openDevice(ctx context.Context, _, _ State, _ Event) error {
	session := uuid.NewString()
	ctx = xlog.ContextWithSessionID(ctx, session)

	devices, err := e.enum.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	desc, err := e.cfg.Selector.Pick(devices)
	if err != nil {
		return err
	}
	h, err := uvc.Open(ctx, e.drv, desc)
	if err != nil {
		return err
	}
	formats, err := h.QueryFormats()
	if err != nil {
		_ = h.Close()
		return err
	}

	e.mu.Lock()
	e.handle = h
	e.formats = formats
	e.format = uvc.StreamFormat{}
	e.session = session
	e.mu.Unlock()

	e.logger.Info().
		Str(xlog.FieldEvent, "element.device_opened").
		Str(xlog.FieldSessionID, session).
		Str(xlog.FieldDevice, desc.String()).
		Str(xlog.FieldBackend, e.drv.Name()).
		Int("formats", len(formats)).
		Msg("device ready")
	return nil
}

func (e *Element) negotiate(_ context.Context, _, _ State, _ Event) error {
	e.mu.Lock()
	formats := e.formats
	e.mu.Unlock()

	f, err := negotiate.Select(formats, e.cfg.Request)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.format = f
	session := e.session
	e.mu.Unlock()

	e.logger.Info().
		Str(xlog.FieldEvent, "element.negotiated").
		Str(xlog.FieldSessionID, session).
		Str(xlog.FieldFormat, f.String()).
		Str(xlog.FieldEncoding, string(f.Encoding)).
		Str(xlog.FieldResolution, f.Resolution()).
		Float64(xlog.FieldFPS, f.FPS()).
		Msg("stream format negotiated")
	return nil
}

func (e *Element) requireFormat(_ context.Context, _ State, _ Event) error {
	if e.currentFormat().IsZero() {
		return capture.ErrNotNegotiated
	}
	return nil
}

func (e *Element) startStreaming(_ context.Context, _, _ State, _ Event) error {
	e.mu.Lock()
	h, format, session := e.handle, e.format, e.session
	e.mu.Unlock()
	if h == nil {
		return ErrNoDevice
	}

	e.clock.reset()
	e.queue.SetFlushing(false)
	if err := e.producer.Start(h, format); err != nil {
		e.queue.SetFlushing(true)
		return err
	}
	e.startOutput(session, e.producer.Gone())
	return nil
}

func (e *Element) pauseStreaming(_ context.Context, _, _ State, _ Event) error {
	e.stopStreaming()
	return nil
}

func (e *Element) forgetFormat(_ context.Context, _, _ State, _ Event) error {
	e.mu.Lock()
	e.format = uvc.StreamFormat{}
	e.mu.Unlock()
	return nil
}

func (e *Element) teardown(_ context.Context, _, _ State, _ Event) error {
	e.release()
	return nil
}

func (e *Element) failDevice(_ context.Context, _, _ State, _ Event) error {
	e.mu.Lock()
	cause := e.pending
	e.pending = nil
	session := e.session
	e.mu.Unlock()

	e.release()

	e.mu.Lock()
	e.lastErr = cause
	e.mu.Unlock()

	e.logger.Error().
		Err(cause).
		Str(xlog.FieldEvent, "element.device_failed").
		Str(xlog.FieldSessionID, session).
		Str(xlog.FieldErrorKind, uvc.KindLabel(cause)).
		Msg("device failed, element needs reset")
	e.publish(bus.Message{Kind: bus.KindError, Err: cause, Session: session})
	return nil
}

func (e *Element) clearError(_ context.Context, _, _ State, _ Event) error {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
	return nil
}

// stopStreaming quiesces the output goroutine and the producer. Safe to call when
// not streaming.
func (e *Element) stopStreaming() {
	e.queue.SetFlushing(true)
	e.stopOutput()
	if err := e.producer.Stop(); err != nil {
		e.logger.Warn().Err(err).Str(xlog.FieldEvent, "element.stop_stream_failed").Msg("stopping device stream failed")
	}
}

// release stops streaming and closes the device.
func (e *Element) release() {
	e.stopStreaming()

	e.mu.Lock()
	h := e.handle
	e.handle = nil
	e.formats = nil
	e.format = uvc.StreamFormat{}
	e.session = ""
	e.mu.Unlock()

	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		e.logger.Warn().Err(err).Str(xlog.FieldEvent, "element.close_failed").Msg("closing device failed")
	}
}

// failAsync moves the element to Error from a goroutine that must not wait for
// the transition lock.
func (e *Element) failAsync(session string, err error) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.fail(session, err)
	}()
}

func (e *Element) fail(session string, err error) {
	e.transMu.Lock()
	defer e.transMu.Unlock()

	e.mu.Lock()
	current := e.session
	e.mu.Unlock()
	if current != session || !e.machine.Can(EventFail) {
		// The session already ended; the error belongs to a closed device.
		e.logger.Debug().Err(err).Str(xlog.FieldSessionID, session).Msg("stale device error ignored")
		return
	}

	e.mu.Lock()
	e.pending = err
	e.mu.Unlock()
	_ = e.fire(context.Background(), EventFail)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package element implements the camera source element: a lifecycle state
// machine that opens a UVC device, negotiates a stream format, runs the frame
// producer and hands timestamped buffers to the host pipeline.
package element

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/capture"
	"github.com/ManuGH/bigeye/internal/fsm"
	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/metrics"
	"github.com/ManuGH/bigeye/internal/negotiate"
	"github.com/ManuGH/bigeye/internal/telemetry"
	"github.com/ManuGH/bigeye/internal/uvc"
)

const (
	DefaultPopTimeout     = 100 * time.Millisecond
	DefaultPublishTimeout = 250 * time.Millisecond
	// Topic is the bus topic element messages are published on.
	Topic = "element"
)

// Config describes one element instance.
type Config struct {
	// Name labels logs, metrics and bus messages.
	Name           string
	Selector       uvc.Selector
	Request        negotiate.Request
	QueueCapacity  int
	PopTimeout     time.Duration
	PublishTimeout time.Duration
}

// Option customizes an Element.
type Option func(*Element)

// WithBus publishes element messages on b.
func WithBus(b bus.Bus) Option { return func(e *Element) { e.bus = b } }

// WithSink enables push mode: while streaming an output goroutine pushes buffers to s.
func WithSink(s Sink) Option { return func(e *Element) { e.sink = s } }

// WithEnumerator finds devices through en instead of the driver.
func WithEnumerator(en uvc.Enumerator) Option { return func(e *Element) { e.enum = en } }

// WithTracerProvider traces transitions with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Element) { e.tracer = tp.Tracer("github.com/ManuGH/bigeye/internal/element") }
}

// Element is the capture source element. All methods are safe for concurrent use;
// state changes are serialized.
type Element struct {
	cfg    Config
	drv    uvc.Driver
	enum   uvc.Enumerator
	bus    bus.Bus
	sink   Sink
	tracer trace.Tracer
	logger zerolog.Logger

	queue    *capture.Queue
	producer *capture.Producer
	machine  *fsm.Machine[State, Event]

	// transMu serializes transitions, including walks across several states.
	transMu sync.Mutex

	mu      sync.Mutex
	handle  *uvc.Handle
	formats []uvc.StreamFormat
	format  uvc.StreamFormat
	session string
	lastErr error
	pending error
	out     *outputRun
	clock   sessionClock

	bg       sync.WaitGroup
	sinkWarn rate.Sometimes
}

// New builds a stopped element over drv.
func New(drv uvc.Driver, cfg Config, opts ...Option) (*Element, error) {
	if drv == nil {
		return nil, errors.New("element: nil driver")
	}
	if cfg.Name == "" {
		cfg.Name = "bigeyesrc0"
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = capture.DefaultCapacity
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = DefaultPopTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	q, err := capture.NewQueue(cfg.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", cfg.Name, err)
	}
	// Frames are only accepted while streaming.
	q.SetFlushing(true)

	e := &Element{
		cfg:      cfg,
		drv:      drv,
		enum:     drv,
		tracer:   telemetry.Tracer("github.com/ManuGH/bigeye/internal/element"),
		logger:   xlog.WithComponent("element").With().Str("element", cfg.Name).Logger(),
		queue:    q,
		producer: capture.NewProducer(q, cfg.Name),
		sinkWarn: rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}

	m, err := fsm.New(StateStopped, e.transitions())
	if err != nil {
		return nil, err
	}
	m.OnTransition(e.onTransition)
	e.machine = m
	metrics.SetElementState(cfg.Name, string(StateStopped), statesAsStrings())
	return e, nil
}

func (e *Element) transitions() []fsm.Transition[State, Event] {
	return []fsm.Transition[State, Event]{
		{From: StateStopped, Event: EventSetReady, To: StateReady, Action: e.openDevice},
		{From: StateReady, Event: EventSetPaused, To: StatePaused, Action: e.negotiate},
		{From: StatePaused, Event: EventSetPlaying, To: StateStreaming, Guard: e.requireFormat, Action: e.startStreaming},
		{From: StateStreaming, Event: EventSetPaused, To: StatePaused, Action: e.pauseStreaming},
		{From: StatePaused, Event: EventSetReady, To: StateReady, Action: e.forgetFormat},

		{From: StateReady, Event: EventSetStopped, To: StateStopped, Action: e.teardown},
		{From: StatePaused, Event: EventSetStopped, To: StateStopped, Action: e.teardown},
		{From: StateStreaming, Event: EventSetStopped, To: StateStopped, Action: e.teardown},

		{From: StateReady, Event: EventFail, To: StateError, Action: e.failDevice},
		{From: StatePaused, Event: EventFail, To: StateError, Action: e.failDevice},
		{From: StateStreaming, Event: EventFail, To: StateError, Action: e.failDevice},

		{From: StateError, Event: EventReset, To: StateStopped, Action: e.clearError},
	}
}

// Name returns the element name.
func (e *Element) Name() string { return e.cfg.Name }

// State returns the current state.
func (e *Element) State() State { return e.machine.State() }

// SetState walks the element to target one transition at a time. It stops at the
// first failing transition and returns its error; the element stays in the last
// state reached. From Error only stopped is reachable, by reset.
func (e *Element) SetState(ctx context.Context, target State) error {
	e.transMu.Lock()
	defer e.transMu.Unlock()
	for {
		cur := e.machine.State()
		if cur == target {
			return nil
		}
		ev, err := nextEvent(cur, target)
		if err != nil {
			return err
		}
		if err := e.fire(ctx, ev); err != nil {
			return err
		}
	}
}

// Reset clears the Error state. It is a no-op in any other state.
func (e *Element) Reset(ctx context.Context) error {
	e.transMu.Lock()
	defer e.transMu.Unlock()
	if e.machine.State() != StateError {
		return nil
	}
	return e.fire(ctx, EventReset)
}

// Close stops the element and waits for background work.
func (e *Element) Close(ctx context.Context) error {
	err := e.SetState(ctx, StateStopped)
	e.bg.Wait()
	return err
}

// Formats returns the formats the open device advertises.
func (e *Element) Formats() ([]uvc.StreamFormat, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == nil {
		return nil, ErrNoDevice
	}
	return append([]uvc.StreamFormat(nil), e.formats...), nil
}

// Caps returns the negotiated format. It is valid from paused on.
func (e *Element) Caps() (uvc.StreamFormat, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.format.IsZero() {
		return uvc.StreamFormat{}, ErrNoFormat
	}
	return e.format, nil
}

// LastError returns the error that moved the element to Error, if any.
func (e *Element) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Status is a point-in-time view of the element.
type Status struct {
	Name      string                `json:"name"`
	State     State                 `json:"state"`
	Session   string                `json:"session_id,omitempty"`
	Device    string                `json:"device,omitempty"`
	Format    string                `json:"format,omitempty"`
	Queue     capture.QueueStats    `json:"queue"`
	Producer  capture.ProducerStats `json:"producer"`
	LastError string                `json:"last_error,omitempty"`
}

// Status returns a snapshot for operators.
func (e *Element) Status() Status {
	st := Status{
		Name:     e.cfg.Name,
		State:    e.machine.State(),
		Queue:    e.queue.Stats(),
		Producer: e.producer.Stats(),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st.Session = e.session
	if e.handle != nil {
		st.Device = e.handle.Descriptor().String()
	}
	if !e.format.IsZero() {
		st.Format = e.format.String()
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// fire runs one transition under a span. The caller holds transMu.
func (e *Element) fire(ctx context.Context, ev Event) error {
	from := e.machine.State()
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "element.transition",
		trace.WithAttributes(telemetry.TransitionAttributes(e.cfg.Name, session, string(from), string(ev))...))
	defer span.End()

	to, err := e.machine.Fire(ctx, ev)
	metrics.IncElementTransition(e.cfg.Name, string(from), string(ev), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(uvc.KindLabel(err))...)
		e.logger.Warn().
			Err(err).
			Str(xlog.FieldEvent, "element.transition_failed").
			Str(xlog.FieldState, string(from)).
			Str(xlog.FieldTransition, string(ev)).
			Msg("state transition failed")
		if !errors.Is(err, fsm.ErrInvalidTransition) {
			e.publish(bus.Message{Kind: bus.KindError, Err: err, Session: session})
		}
		return err
	}
	span.SetAttributes(telemetry.FormatAttributes(e.currentFormat())...)
	span.SetStatus(codes.Ok, string(to))
	return nil
}

func (e *Element) onTransition(from, to State, ev Event) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()

	metrics.SetElementState(e.cfg.Name, string(to), statesAsStrings())
	e.logger.Info().
		Str(xlog.FieldEvent, "element.transition").
		Str(xlog.FieldSessionID, session).
		Str(xlog.FieldOldState, string(from)).
		Str(xlog.FieldNewState, string(to)).
		Str(xlog.FieldTransition, string(ev)).
		Msg("state changed")
	e.publish(bus.Message{Kind: bus.KindStateChanged, Old: string(from), New: string(to), Session: session})
}

func (e *Element) publish(msg bus.Message) {
	if e.bus == nil {
		return
	}
	msg.Source = e.cfg.Name
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
	defer cancel()
	if err := e.bus.Publish(ctx, Topic, msg); err != nil {
		e.logger.Debug().Err(err).Str("kind", string(msg.Kind)).Msg("element message dropped")
	}
}

func (e *Element) currentFormat() uvc.StreamFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build cgo

package gstsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/ManuGH/bigeye/internal/element"
	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/metrics"
)

const busPollInterval = 50 * time.Millisecond

var initOnce sync.Once

// Pipeline is a host pipeline built from a launch string whose appsrc is fed
// by the element. It implements element.Sink.
type Pipeline struct {
	pipeline *gst.Pipeline
	src      *app.Source
	logger   zerolog.Logger

	mu   sync.Mutex
	caps string
}

// New parses launch and looks up the appsrc named appsrcName. The pipeline is
// left in NULL; call Start.
func New(launch, appsrcName string) (*Pipeline, error) {
	initOnce.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, fmt.Errorf("gstsink: parse pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName(appsrcName)
	if err != nil {
		return nil, fmt.Errorf("gstsink: appsrc %q not found: %w", appsrcName, err)
	}
	src := app.SrcFromElement(elem)
	src.SetLive(true)
	src.SetFormat(gst.FormatTime)
	src.SetDoTimestamp(false)
	src.SetStreamType(app.AppStreamTypeStream)

	return &Pipeline{
		pipeline: pipeline,
		src:      src,
		logger:   xlog.WithComponent("gstsink").With().Str("appsrc", appsrcName).Logger(),
	}, nil
}

// Start sets the pipeline to PLAYING.
func (p *Pipeline) Start() error {
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstsink: set playing: %w", err)
	}
	return nil
}

// Stop signals end of stream and tears the pipeline down.
func (p *Pipeline) Stop() error {
	p.src.EndStream()
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstsink: set null: %w", err)
	}
	return nil
}

// PushBuffer copies buf into a GStreamer buffer and pushes it into appsrc.
// Caps are (re)set whenever the buffer format changes.
func (p *Pipeline) PushBuffer(_ context.Context, buf element.Buffer) error {
	if err := p.ensureCaps(buf); err != nil {
		return err
	}

	gb := gst.NewBufferFromBytes(buf.Data)
	gb.SetPresentationTimestamp(buf.PTS)
	if buf.Duration > 0 {
		gb.SetDuration(buf.Duration)
	}
	gb.SetOffset(int64(buf.Offset))
	if buf.Discont {
		gb.SetFlags(gst.BufferFlagDiscont)
	}

	switch ret := p.src.PushBuffer(gb); ret {
	case gst.FlowOK:
		return nil
	case gst.FlowFlushing:
		return element.ErrSinkFlushing
	case gst.FlowEOS:
		return element.ErrSinkEOS
	default:
		return fmt.Errorf("gstsink: push buffer: flow %v", ret)
	}
}

func (p *Pipeline) ensureCaps(buf element.Buffer) error {
	caps, err := CapsString(buf.Format)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if caps == p.caps {
		return nil
	}
	p.src.SetCaps(gst.NewCapsFromString(caps))
	p.caps = caps
	ev := p.logger.Info().
		Str(xlog.FieldEvent, "gstsink.caps").
		Str(xlog.FieldFormat, buf.Format.String()).
		Str("caps", caps)
	if minLatency, maxLatency, ok := Latency(buf.Format); ok {
		p.src.SetLatency(minLatency, maxLatency)
		ev = ev.Dur("min_latency", minLatency)
	}
	ev.Msg("appsrc caps set")
	return nil
}

// Watch drains the pipeline bus until ctx ends, end of stream or a pipeline error.
func (p *Pipeline) Watch(ctx context.Context) error {
	bus := p.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		metrics.IncPipelineMessage(msg.Type().String())

		switch msg.Type() {
		case gst.MessageEOS:
			p.logger.Info().Str(xlog.FieldEvent, "gstsink.eos").Msg("pipeline reached end of stream")
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			p.logger.Error().
				Str(xlog.FieldEvent, "gstsink.error").
				Str("source", msg.Source()).
				Str("debug", gerr.DebugString()).
				Msg(gerr.Error())
			return fmt.Errorf("gstsink: pipeline error from %s: %s", msg.Source(), gerr.Error())
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			p.logger.Warn().
				Str(xlog.FieldEvent, "gstsink.warning").
				Str("source", msg.Source()).
				Msg(gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() == p.pipeline.GetName() {
				oldState, newState := msg.ParseStateChanged()
				p.logger.Debug().
					Str(xlog.FieldEvent, "gstsink.state_changed").
					Str(xlog.FieldOldState, oldState.String()).
					Str(xlog.FieldNewState, newState.String()).
					Msg("pipeline state changed")
			}
		}
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/metrics"
	"github.com/ManuGH/bigeye/internal/uvc"
)

var (
	// ErrNotNegotiated rejects a start without a stream format.
	ErrNotNegotiated = errors.New("stream format not negotiated")
	// ErrRunning rejects a second start.
	ErrRunning = errors.New("producer already running")
)

// Stream is the device side of a Producer. *uvc.Handle implements it.
type Stream interface {
	Descriptor() uvc.DeviceDescriptor
	Stream(format uvc.StreamFormat, cb uvc.Callback) error
	StopStream() error
}

// ProducerStats counts frames of the current session.
type ProducerStats struct {
	Produced uint64 `json:"produced"`
	Dropped  uint64 `json:"dropped"`
	Bytes    uint64 `json:"bytes"`
	LastSeq  uint64 `json:"last_seq"`
}

// Producer runs the device callback for one session at a time.
type Producer struct {
	queue  *Queue
	source string
	logger zerolog.Logger

	mu       sync.Mutex
	active   bool
	stream   Stream
	started  time.Time
	seq      uint64
	stats    ProducerStats
	gone     chan error
	inflight sync.WaitGroup

	dropLog rate.Sometimes
}

// NewProducer returns a producer feeding q. source labels metrics and logs.
func NewProducer(q *Queue, source string) *Producer {
	return &Producer{
		queue:   q,
		source:  source,
		logger:  xlog.WithComponent("capture").With().Str("source", source).Logger(),
		dropLog: rate.Sometimes{Interval: time.Second},
	}
}

// Start registers the callback on s for format. Sequence numbers restart at 1.
func (p *Producer) Start(s Stream, format uvc.StreamFormat) error {
	if format.IsZero() {
		return ErrNotNegotiated
	}

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return ErrRunning
	}
	p.active = true
	p.stream = s
	p.started = time.Now()
	p.seq = 0
	p.stats = ProducerStats{}
	p.gone = make(chan error, 1)
	p.mu.Unlock()

	if err := s.Stream(format, p.onTransfer); err != nil {
		p.mu.Lock()
		p.active = false
		p.mu.Unlock()
		p.inflight.Wait()
		return err
	}

	p.logger.Info().
		Str(xlog.FieldEvent, "capture.started").
		Str(xlog.FieldDevice, s.Descriptor().String()).
		Str(xlog.FieldFormat, format.String()).
		Msg("frame producer started")
	return nil
}

// Stop unregisters the callback and waits for in-flight invocations. Nothing is
// pushed after it returns. It is idempotent.
func (p *Producer) Stop() error {
	p.mu.Lock()
	s := p.stream
	wasActive := p.active
	p.active = false
	p.stream = nil
	p.mu.Unlock()

	p.inflight.Wait()
	if s == nil {
		return nil
	}
	err := s.StopStream()
	if wasActive {
		st := p.Stats()
		p.logger.Info().
			Str(xlog.FieldEvent, "capture.stopped").
			Uint64("produced", st.Produced).
			Uint64(xlog.FieldDropped, st.Dropped).
			Msg("frame producer stopped")
	}
	return err
}

// Gone delivers at most one DeviceGone error per session. The channel is
// replaced on every Start.
func (p *Producer) Gone() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gone
}

// Running reports whether the callback is registered.
func (p *Producer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Stats returns the counters of the current or last session.
func (p *Producer) Stats() ProducerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Producer) onTransfer(t uvc.Transfer, err error) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.inflight.Add(1)
	defer p.inflight.Done()

	if err != nil {
		// Transport failure ends the session; later transfers are ignored.
		p.active = false
		gone := p.gone
		desc := p.stream.Descriptor()
		p.mu.Unlock()
		p.fail(gone, desc, err)
		return
	}

	if len(t.Data) == 0 {
		p.mu.Unlock()
		return
	}
	p.seq++
	f := Frame{Seq: p.seq, Captured: t.Captured, Data: t.Data}
	if f.Captured <= 0 {
		f.Captured = time.Since(p.started)
	}
	p.stats.Produced++
	p.stats.Bytes += uint64(len(t.Data))
	p.stats.LastSeq = f.Seq
	p.mu.Unlock()

	metrics.IncFrameProduced(p.source, len(f.Data))
	switch p.queue.Push(f) {
	case Accepted:
		metrics.SetQueueDepth(p.source, p.queue.Len())
	case Dropped:
		p.mu.Lock()
		p.stats.Dropped++
		dropped := p.stats.Dropped
		p.mu.Unlock()
		metrics.IncFrameDropped(p.source, "queue_full")
		p.dropLog.Do(func() {
			p.logger.Warn().
				Str(xlog.FieldEvent, "capture.frame_dropped").
				Uint64(xlog.FieldSeq, f.Seq).
				Uint64(xlog.FieldDropped, dropped).
				Msg("queue full, dropping newest frame")
		})
	case Flushing:
	}
}

func (p *Producer) fail(gone chan error, desc uvc.DeviceDescriptor, cause error) {
	err := uvc.NewDeviceError("capture", desc, uvc.ErrDeviceGone, cause)
	metrics.IncDeviceError("capture", uvc.KindLabel(uvc.ErrDeviceGone))
	p.logger.Error().
		Err(err).
		Str(xlog.FieldEvent, "capture.device_gone").
		Str(xlog.FieldDevice, desc.String()).
		Msg("transport failed, producer stopped")
	select {
	case gone <- err:
	default:
	}
}

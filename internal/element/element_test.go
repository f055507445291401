// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package element

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/capture"
	"github.com/ManuGH/bigeye/internal/fsm"
	"github.com/ManuGH/bigeye/internal/negotiate"
	"github.com/ManuGH/bigeye/internal/uvc"
	"github.com/ManuGH/bigeye/internal/uvc/uvctest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collectSink struct {
	mu   sync.Mutex
	bufs []Buffer
	err  error
}

func (s *collectSink) PushBuffer(_ context.Context, b Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.bufs = append(s.bufs, b)
	return nil
}

func (s *collectSink) buffers() []Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Buffer(nil), s.bufs...)
}

type harness struct {
	t    *testing.T
	cam  uvctest.Camera
	drv  *uvctest.Driver
	el   *Element
	bus  *bus.MemoryBus
	sub  bus.Subscriber
	sink *collectSink
}

func newHarness(t *testing.T, cam uvctest.Camera, cfg Config, push bool) *harness {
	t.Helper()
	h := &harness{t: t, cam: cam, drv: uvctest.NewDriver(cam), bus: bus.NewMemoryBus()}
	sub, err := h.bus.Subscribe(context.Background(), Topic)
	require.NoError(t, err)
	h.sub = sub

	if cfg.Name == "" {
		cfg.Name = t.Name()
	}
	if cfg.PopTimeout == 0 {
		cfg.PopTimeout = 20 * time.Millisecond
	}
	opts := []Option{WithBus(h.bus)}
	if push {
		h.sink = &collectSink{}
		opts = append(opts, WithSink(h.sink))
	}
	h.el, err = New(h.drv, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.el.Close(context.Background())
		_ = h.sub.Close()
	})
	return h
}

func (h *harness) device() *uvctest.Device {
	return h.drv.Device(h.cam.Desc)
}

// messages drains the subscription without blocking.
func (h *harness) messages() []bus.Message {
	var out []bus.Message
	for {
		select {
		case m := <-h.sub.C():
			out = append(out, m)
		default:
			return out
		}
	}
}

func countKind(msgs []bus.Message, kind bus.Kind) int {
	n := 0
	for _, m := range msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func TestLifecycleWalk(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{}, true)
	ctx := context.Background()

	require.NoError(t, h.el.SetState(ctx, StateStreaming))
	assert.Equal(t, StateStreaming, h.el.State())
	assert.True(t, h.device().Streaming())

	msgs := h.messages()
	var path []string
	for _, m := range msgs {
		if m.Kind == bus.KindStateChanged {
			path = append(path, m.Old+">"+m.New)
		}
	}
	assert.Equal(t, []string{"stopped>ready", "ready>paused", "paused>streaming"}, path)

	require.NoError(t, h.el.SetState(ctx, StateReady))
	assert.Equal(t, StateReady, h.el.State())
	assert.False(t, h.device().Streaming())
	assert.False(t, h.device().Closed(), "ready keeps the device open")
	_, err := h.el.Caps()
	assert.ErrorIs(t, err, ErrNoFormat)

	require.NoError(t, h.el.SetState(ctx, StateStopped))
	assert.True(t, h.device().Closed())
	assert.Equal(t, 0, h.drv.OpenCount())
	_, err = h.el.Formats()
	assert.ErrorIs(t, err, ErrNoDevice)

	require.NoError(t, h.el.SetState(ctx, StateStopped), "same state is a no-op")
}

func TestNegotiatesHighestResolution(t *testing.T) {
	cam := uvctest.DualFisheye("/dev/video0")
	cam.Formats = []uvc.StreamFormat{
		{Encoding: uvc.EncodingMJPEG, Width: 1280, Height: 720, Interval: uvc.IntervalFromFPS(30)},
		{Encoding: uvc.EncodingMJPEG, Width: 640, Height: 480, Interval: uvc.IntervalFromFPS(60)},
	}
	h := newHarness(t, cam, Config{Request: negotiate.Request{Encodings: []uvc.Encoding{uvc.EncodingMJPEG}}}, false)

	require.NoError(t, h.el.SetState(context.Background(), StateReady))
	formats, err := h.el.Formats()
	require.NoError(t, err)
	assert.Equal(t, cam.Formats, formats)

	require.NoError(t, h.el.SetState(context.Background(), StatePaused))
	caps, err := h.el.Caps()
	require.NoError(t, err)
	assert.Equal(t, cam.Formats[0], caps)
	assert.Equal(t, 0, h.device().Starts(), "paused does not stream")
}

func TestNoStreamingWithoutNegotiation(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"),
		Config{Request: negotiate.Request{Encodings: []uvc.Encoding{uvc.EncodingH264}}}, false)
	ctx := context.Background()

	err := h.el.SetState(ctx, StateStreaming)
	require.ErrorIs(t, err, uvc.ErrNoMatch)
	assert.Equal(t, StateReady, h.el.State(), "failed negotiation leaves the state unchanged")
	assert.Equal(t, 0, h.device().Starts())

	// There is no direct edge from ready to streaming.
	h.el.transMu.Lock()
	err = h.el.fire(ctx, EventSetPlaying)
	h.el.transMu.Unlock()
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	assert.Equal(t, 0, h.device().Starts())
}

func TestAccessDeniedKeepsStopped(t *testing.T) {
	cam := uvctest.DualFisheye("/dev/video0")
	cam.OpenErr = syscall.EACCES
	h := newHarness(t, cam, Config{}, false)

	err := h.el.SetState(context.Background(), StateStreaming)
	require.ErrorIs(t, err, uvc.ErrAccessDenied)
	assert.NotErrorIs(t, err, uvc.ErrNotFound)
	assert.Equal(t, StateStopped, h.el.State())
	assert.Contains(t, err.Error(), "/dev/video0")

	msgs := h.messages()
	require.Equal(t, 1, countKind(msgs, bus.KindError))
	assert.Equal(t, 0, countKind(msgs, bus.KindStateChanged))

	// Fixing permissions is enough to retry.
	h.drv.SetOpenErr(cam.Desc, nil)
	require.NoError(t, h.el.SetState(context.Background(), StateReady))
}

func TestSelectorNotFound(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"),
		Config{Selector: uvc.Selector{VendorID: 0x1234, ProductID: 0x5678}}, false)
	err := h.el.SetState(context.Background(), StateReady)
	require.ErrorIs(t, err, uvc.ErrNotFound)
	assert.Equal(t, StateStopped, h.el.State())
}

func TestSecondElementIsBusy(t *testing.T) {
	cam := uvctest.DualFisheye("/dev/video0")
	drv := uvctest.NewDriver(cam)
	first, err := New(drv, Config{Name: "first"})
	require.NoError(t, err)
	second, err := New(drv, Config{Name: "second"})
	require.NoError(t, err)
	defer func() {
		_ = first.Close(context.Background())
		_ = second.Close(context.Background())
	}()

	require.NoError(t, first.SetState(context.Background(), StateReady))
	err = second.SetState(context.Background(), StateReady)
	require.ErrorIs(t, err, uvc.ErrBusy)
	assert.Equal(t, StateStopped, second.State())
	assert.Equal(t, 1, drv.OpenCount())

	require.NoError(t, first.SetState(context.Background(), StateStopped))
	require.NoError(t, second.SetState(context.Background(), StateReady))
	assert.Equal(t, 2, drv.Opens())
}

func TestPushModeTimestamps(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{QueueCapacity: 16}, true)
	require.NoError(t, h.el.SetState(context.Background(), StateStreaming))
	dev := h.device()

	require.True(t, dev.EmitAt([]byte("f1"), 500*time.Millisecond))
	require.True(t, dev.EmitAt([]byte("f2"), 533*time.Millisecond))
	require.Eventually(t, func() bool { return len(h.sink.buffers()) == 2 }, time.Second, 5*time.Millisecond)

	bufs := h.sink.buffers()
	assert.Equal(t, time.Duration(0), bufs[0].PTS)
	assert.True(t, bufs[0].Discont, "first buffer of a session")
	assert.Equal(t, uint64(1), bufs[0].Offset)
	assert.Equal(t, 33*time.Millisecond, bufs[1].PTS)
	assert.False(t, bufs[1].Discont)
	assert.Equal(t, uvc.IntervalFromFPS(30).Duration(), bufs[1].Duration)
	assert.Equal(t, []byte("f2"), bufs[1].Data)
	assert.Equal(t, h.cam.Formats[0], bufs[1].Format)
}

func TestDiscontAfterDrops(t *testing.T) {
	clock := &sessionClock{}
	_, d := clock.stamp(capture.Frame{Seq: 1, Captured: time.Second})
	assert.True(t, d)
	pts, d := clock.stamp(capture.Frame{Seq: 2, Captured: time.Second + 10*time.Millisecond})
	assert.False(t, d)
	assert.Equal(t, 10*time.Millisecond, pts)
	_, d = clock.stamp(capture.Frame{Seq: 5, Captured: 2 * time.Second})
	assert.True(t, d, "sequence gap")
	pts, _ = clock.stamp(capture.Frame{Seq: 6, Captured: 0})
	assert.Equal(t, time.Duration(0), pts, "pts never negative")
}

func TestPullModeCreate(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{}, false)
	ctx := context.Background()

	_, err := h.el.Create(ctx)
	require.ErrorIs(t, err, ErrNotStreaming)

	require.NoError(t, h.el.SetState(ctx, StateStreaming))
	go func() {
		time.Sleep(30 * time.Millisecond)
		h.device().EmitAt([]byte("jpeg"), time.Millisecond)
	}()
	buf, err := h.el.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), buf.Data)
	assert.Equal(t, uint64(1), buf.Offset)
}

func TestUnlockInterruptsCreate(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{}, false)
	ctx := context.Background()
	require.NoError(t, h.el.SetState(ctx, StateStreaming))

	errs := make(chan error, 1)
	go func() {
		_, err := h.el.Create(ctx)
		errs <- err
	}()
	time.Sleep(30 * time.Millisecond)
	h.el.Unlock()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, capture.ErrFlushing)
	case <-time.After(time.Second):
		t.Fatal("create not interrupted")
	}

	h.el.UnlockStop()
	h.device().Emit([]byte("again"))
	buf, err := h.el.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), buf.Data)
}

func TestUnplugWhileStreaming(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{PopTimeout: 20 * time.Millisecond}, true)
	ctx := context.Background()
	require.NoError(t, h.el.SetState(ctx, StateStreaming))
	dev := h.device()
	dev.Emit([]byte("before"))
	require.Eventually(t, func() bool { return len(h.sink.buffers()) == 1 }, time.Second, 5*time.Millisecond)
	_ = h.messages()

	h.drv.Unplug(h.cam.Desc)

	require.Eventually(t, func() bool { return h.el.State() == StateError }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, h.el.LastError(), uvc.ErrDeviceGone)
	assert.True(t, dev.Closed())
	assert.False(t, h.el.producer.Running())

	// Late transfers after the failure go nowhere.
	assert.False(t, dev.Emit([]byte("after")))
	time.Sleep(3 * h.el.cfg.PopTimeout)
	assert.Len(t, h.sink.buffers(), 1)

	msgs := h.messages()
	require.Equal(t, 1, countKind(msgs, bus.KindError))
	for _, m := range msgs {
		if m.Kind == bus.KindError {
			assert.ErrorIs(t, m.Err, uvc.ErrDeviceGone)
		}
	}

	// Error only accepts reset.
	require.ErrorIs(t, h.el.SetState(ctx, StateReady), ErrNeedsReset)
	_, err := h.el.Create(ctx)
	require.ErrorIs(t, err, uvc.ErrDeviceGone)

	require.NoError(t, h.el.Reset(ctx))
	assert.Equal(t, StateStopped, h.el.State())
	assert.NoError(t, h.el.LastError())

	// The camera is no longer enumerated.
	require.ErrorIs(t, h.el.SetState(ctx, StateReady), uvc.ErrNotFound)
}

func TestUnplugInPullMode(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{}, false)
	ctx := context.Background()
	require.NoError(t, h.el.SetState(ctx, StateStreaming))

	h.drv.Unplug(h.cam.Desc)
	require.Eventually(t, func() bool { return h.el.State() == StateError }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.el.SetState(ctx, StateStopped), "stopped from error resets")
	assert.Equal(t, StateStopped, h.el.State())
}

func TestStaleDeviceErrorIgnored(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{}, false)
	ctx := context.Background()
	require.NoError(t, h.el.SetState(ctx, StateReady))

	h.el.fail("some-old-session", uvc.ErrDeviceGone)
	assert.Equal(t, StateReady, h.el.State())
}

func TestStopIsRaceFree(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{QueueCapacity: 64}, true)
	ctx := context.Background()
	require.NoError(t, h.el.SetState(ctx, StateStreaming))
	dev := h.device()

	var stop sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		stop.Add(1)
		go func() {
			defer stop.Done()
			for {
				select {
				case <-done:
					return
				default:
					dev.Emit([]byte{0xff})
				}
			}
		}()
	}
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, h.el.SetState(ctx, StatePaused))
	pushed := h.el.queue.Stats().Pushed
	emitted := len(h.sink.buffers())
	time.Sleep(30 * time.Millisecond)
	close(done)
	stop.Wait()

	assert.Equal(t, pushed, h.el.queue.Stats().Pushed, "no push after stop")
	assert.Equal(t, emitted, len(h.sink.buffers()), "no buffer after stop")
	assert.Equal(t, StatePaused, h.el.State())

	// Streaming again starts a fresh session on the same device.
	require.NoError(t, h.el.SetState(ctx, StateStreaming))
	assert.Equal(t, 2, dev.Starts())
}

func TestSinkErrorsDoNotStopOutput(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{QueueCapacity: 8}, true)
	ctx := context.Background()
	h.sink.err = errors.New("not linked")
	require.NoError(t, h.el.SetState(ctx, StateStreaming))

	h.device().Emit([]byte("lost"))
	require.Eventually(t, func() bool { return h.el.queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return countKind(h.messages(), bus.KindWarning) == 1 }, time.Second, 5*time.Millisecond)

	h.sink.mu.Lock()
	h.sink.err = nil
	h.sink.mu.Unlock()
	h.device().Emit([]byte("kept"))
	require.Eventually(t, func() bool { return len(h.sink.buffers()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateStreaming, h.el.State())
}

func TestSinkFlushingDropsBuffer(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{}, true)
	ctx := context.Background()
	h.sink.err = ErrSinkFlushing
	require.NoError(t, h.el.SetState(ctx, StateStreaming))

	h.device().Emit([]byte("flushed"))
	require.Eventually(t, func() bool { return h.el.queue.Len() == 0 }, time.Second, 5*time.Millisecond)

	h.sink.mu.Lock()
	h.sink.err = nil
	h.sink.mu.Unlock()
	h.device().Emit([]byte("kept"))
	require.Eventually(t, func() bool { return len(h.sink.buffers()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("kept"), h.sink.buffers()[0].Data)
	assert.Zero(t, countKind(h.messages(), bus.KindWarning))
}

func TestUnplugAfterSinkEOS(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{PopTimeout: 20 * time.Millisecond}, true)
	ctx := context.Background()
	h.sink.err = ErrSinkEOS
	require.NoError(t, h.el.SetState(ctx, StateStreaming))

	dev := h.device()
	dev.Emit([]byte("last"))
	require.Eventually(t, func() bool { return h.el.queue.Len() == 0 }, time.Second, 5*time.Millisecond)

	// Output no longer pops once the sink is at end of stream.
	dev.Emit([]byte("unread"))
	time.Sleep(3 * h.el.cfg.PopTimeout)
	assert.Equal(t, 1, h.el.queue.Len())
	assert.Equal(t, StateStreaming, h.el.State())
	_ = h.messages()

	h.drv.Unplug(h.cam.Desc)

	require.Eventually(t, func() bool { return h.el.State() == StateError }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, h.el.LastError(), uvc.ErrDeviceGone)
	assert.True(t, dev.Closed())
	assert.Equal(t, 1, countKind(h.messages(), bus.KindError))
	assert.Empty(t, h.sink.buffers())
}

func TestStatus(t *testing.T) {
	h := newHarness(t, uvctest.DualFisheye("/dev/video0"), Config{Name: "cam0"}, true)
	require.NoError(t, h.el.SetState(context.Background(), StatePaused))
	st := h.el.Status()
	assert.Equal(t, "cam0", st.Name)
	assert.Equal(t, StatePaused, st.State)
	assert.NotEmpty(t, st.Session)
	assert.Equal(t, "mjpeg 1280x720@30", st.Format)
	assert.Contains(t, st.Device, "/dev/video0")
	assert.Equal(t, capture.DefaultCapacity, st.Queue.Capacity)
}

func TestNextEvent(t *testing.T) {
	tests := []struct {
		cur, target State
		want        Event
		wantErr     error
	}{
		{StateStopped, StateStreaming, EventSetReady, nil},
		{StateReady, StateStreaming, EventSetPaused, nil},
		{StatePaused, StateStreaming, EventSetPlaying, nil},
		{StateStreaming, StateReady, EventSetPaused, nil},
		{StatePaused, StateReady, EventSetReady, nil},
		{StateStreaming, StateStopped, EventSetStopped, nil},
		{StateError, StateStopped, EventReset, nil},
		{StateError, StatePaused, "", ErrNeedsReset},
		{StateReady, StateError, "", ErrInvalidTarget},
	}
	for _, tc := range tests {
		got, err := nextEvent(tc.cur, tc.target)
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr, "%s -> %s", tc.cur, tc.target)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.cur, tc.target)
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("PLAYING")
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, s)
	s, err = ParseState("null")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, s)
	_, err = ParseState("bogus")
	assert.Error(t, err)
}

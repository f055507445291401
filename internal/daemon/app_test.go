// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/element"
	"github.com/ManuGH/bigeye/internal/uvc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeElement struct {
	mu      sync.Mutex
	targets []element.State
	closed  int
	err     error
}

func (f *fakeElement) SetState(_ context.Context, target element.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	return f.err
}

func (f *fakeElement) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeElement) snapshot() ([]element.State, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]element.State(nil), f.targets...), f.closed
}

type fakePipeline struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	watchErr error
}

func (p *fakePipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *fakePipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func (p *fakePipeline) Watch(ctx context.Context) error {
	if p.watchErr != nil {
		return p.watchErr
	}
	<-ctx.Done()
	return nil
}

type watcherFunc func(ctx context.Context) error

func (f watcherFunc) Watch(ctx context.Context) error { return f(ctx) }

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
}

func TestNewAppValidatesDeps(t *testing.T) {
	_, err := NewApp(Config{}, Deps{APIHandler: okHandler()})
	assert.ErrorIs(t, err, ErrMissingElement)
	_, err = NewApp(Config{}, Deps{Element: &fakeElement{}})
	assert.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestAppRunAndShutdown(t *testing.T) {
	el := &fakeElement{}
	pl := &fakePipeline{}
	watched := make(chan struct{})
	var order []string

	app, err := NewApp(Config{AutoStart: true}, Deps{
		Logger:     zerolog.Nop(),
		Element:    el,
		APIHandler: okHandler(),
		Listener:   listen(t),
		Bus:        bus.NewMemoryBus(),
		Pipeline:   pl,
		Watchers: []Watcher{watcherFunc(func(ctx context.Context) error {
			close(watched)
			<-ctx.Done()
			return ctx.Err()
		})},
	})
	require.NoError(t, err)
	app.RegisterShutdownHook("first", func(context.Context) error { order = append(order, "first"); return nil })
	app.RegisterShutdownHook("second", func(context.Context) error { order = append(order, "second"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	<-watched
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + app.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.Eventually(t, func() bool {
		targets, _ := el.snapshot()
		return len(targets) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	targets, closed := el.snapshot()
	assert.Equal(t, []element.State{element.StateStreaming}, targets)
	assert.Equal(t, 1, closed)
	assert.True(t, pl.started)
	assert.True(t, pl.stopped)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestAutoStartFailureIsNotFatal(t *testing.T) {
	el := &fakeElement{err: &uvc.DeviceError{Op: "open", Kind: uvc.ErrAccessDenied, Err: errors.New("permission denied")}}
	app, err := NewApp(Config{AutoStart: true}, Deps{
		Logger:     zerolog.Nop(),
		Element:    el,
		APIHandler: okHandler(),
		Listener:   listen(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		targets, _ := el.snapshot()
		return len(targets) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestPipelineFailureStopsApp(t *testing.T) {
	el := &fakeElement{}
	pl := &fakePipeline{watchErr: errors.New("internal data stream error")}
	app, err := NewApp(Config{}, Deps{
		Logger:     zerolog.Nop(),
		Element:    el,
		APIHandler: okHandler(),
		Listener:   listen(t),
		Pipeline:   pl,
	})
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host pipeline")

	_, closed := el.snapshot()
	assert.Equal(t, 1, closed, "element must be stopped when the app exits")
	assert.True(t, pl.stopped)
}

func TestLogMessagesHandlesErrors(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), element.Topic)
	require.NoError(t, err)
	defer sub.Close()

	app := &App{logger: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.logMessages(ctx, sub)
		close(done)
	}()

	gone := &uvc.DeviceError{Op: "stream", Kind: uvc.ErrDeviceGone, Err: errors.New("no such device")}
	require.NoError(t, b.Publish(ctx, element.Topic, bus.Message{Kind: bus.KindError, Err: gone}))
	require.NoError(t, b.Publish(ctx, element.Topic, bus.Message{Kind: bus.KindWarning, Err: errors.New("sink slow")}))
	cancel()
	<-done
}

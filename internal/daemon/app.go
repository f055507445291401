// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon owns the runtime lifecycle: the control server, the host
// pipeline, background watchers and the element itself.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/element"
	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/uvc"
)

// App runs until its context ends or a fatal error occurs.
type App struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	mu    sync.Mutex
	hooks []namedHook
	addr  net.Addr
	ready chan struct{}
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewApp creates a new App orchestrator.
func NewApp(cfg Config, deps Deps) (*App, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &App{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: deps.Logger.With().Str(xlog.FieldComponent, "daemon").Logger(),
		ready:  make(chan struct{}),
	}, nil
}

// RegisterShutdownHook registers fn to run after the element has stopped.
func (a *App) RegisterShutdownHook(name string, fn ShutdownHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, namedHook{name: name, hook: fn})
}

// Addr returns the control server address once it listens.
func (a *App) Addr() net.Addr {
	<-a.ready
	return a.addr
}

// Run starts every owned subsystem and blocks until ctx is cancelled or one of
// them fails. The element is always stopped before Run returns.
func (a *App) Run(ctx context.Context) error {
	ln := a.deps.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.ListenAddr)
		if err != nil {
			close(a.ready)
			return fmt.Errorf("listen %s: %w", a.cfg.ListenAddr, err)
		}
	}
	a.addr = ln.Addr()
	close(a.ready)

	if p := a.deps.Pipeline; p != nil {
		if err := p.Start(); err != nil {
			_ = ln.Close()
			return err
		}
	}

	var sub bus.Subscriber
	if a.deps.Bus != nil {
		var err error
		if sub, err = a.deps.Bus.Subscribe(ctx, element.Topic); err != nil {
			_ = ln.Close()
			if a.deps.Pipeline != nil {
				_ = a.deps.Pipeline.Stop()
			}
			return fmt.Errorf("subscribe element bus: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if sub != nil {
		g.Go(func() error {
			defer sub.Close()
			a.logMessages(gctx, sub)
			return nil
		})
	}

	// Watcher failures are logged, never fatal.
	for _, w := range a.deps.Watchers {
		g.Go(func() error {
			if err := w.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Str(xlog.FieldEvent, "daemon.watcher_failed").Msg("background watcher stopped")
			}
			return nil
		})
	}

	if p := a.deps.Pipeline; p != nil {
		g.Go(func() error {
			if err := p.Watch(gctx); err != nil {
				return fmt.Errorf("host pipeline: %w", err)
			}
			return nil
		})
	}

	srv := &http.Server{
		Handler:           a.deps.APIHandler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
	}
	g.Go(func() error {
		a.logger.Info().Str("listen", a.addr.String()).Str(xlog.FieldEvent, "daemon.listening").Msg("control API listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.cfg.AutoStart {
		g.Go(func() error {
			if err := a.deps.Element.SetState(gctx, element.StateStreaming); err != nil {
				// The element stays in the last state reached.
				a.logger.Error().Err(err).
					Str(xlog.FieldEvent, "daemon.autostart_failed").
					Str(xlog.FieldErrorKind, uvc.KindLabel(err)).
					Msg("element did not reach streaming")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown(srv)
	})

	return g.Wait()
}

func (a *App) shutdown(srv *http.Server) error {
	a.logger.Info().Str(xlog.FieldEvent, "daemon.shutdown").Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.deps.Element.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("element close: %w", err))
	}
	if a.deps.Pipeline != nil {
		if err := a.deps.Pipeline.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	a.mu.Lock()
	hooks := append([]namedHook(nil), a.hooks...)
	a.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].hook(ctx); err != nil {
			a.logger.Warn().Err(err).Str("hook", hooks[i].name).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
		}
	}
	a.logger.Info().Str(xlog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return errors.Join(errs...)
}

// logMessages mirrors element bus messages into the log.
func (a *App) logMessages(ctx context.Context, sub bus.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			switch msg.Kind {
			case bus.KindError:
				ev := a.logger.Error().Err(msg.Err).
					Str(xlog.FieldEvent, "element.error").
					Str(xlog.FieldErrorKind, uvc.KindLabel(msg.Err))
				var de *uvc.DeviceError
				if errors.As(msg.Err, &de) {
					ev = ev.Str(xlog.FieldDevice, de.Device.String()).Str("remediation", de.Remediation())
				}
				ev.Str(xlog.FieldSessionID, msg.Session).Str("element", msg.Source).Msg("element error")
			case bus.KindWarning:
				a.logger.Warn().Err(msg.Err).
					Str(xlog.FieldEvent, "element.warning").
					Str(xlog.FieldSessionID, msg.Session).
					Str("element", msg.Source).
					Msg("element warning")
			}
		}
	}
}

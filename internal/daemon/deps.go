// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/element"
)

// Element is the lifecycle surface the app drives.
type Element interface {
	SetState(ctx context.Context, target element.State) error
	Close(ctx context.Context) error
}

// HostPipeline is the downstream pipeline fed by the element.
type HostPipeline interface {
	Start() error
	Stop() error
	Watch(ctx context.Context) error
}

// Watcher is a background task that runs until ctx ends, such as the
// enumeration cache hotplug watch.
type Watcher interface {
	Watch(ctx context.Context) error
}

// ShutdownHook performs cleanup during graceful shutdown.
// Hooks run in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Deps contains what the App wires together. Only Element and APIHandler are required.
type Deps struct {
	Logger     zerolog.Logger
	Element    Element
	APIHandler http.Handler

	// Listener overrides Config.ListenAddr, mainly for tests.
	Listener net.Listener
	Bus      bus.Bus
	Pipeline HostPipeline
	Watchers []Watcher
}

func (d Deps) Validate() error {
	if d.Element == nil {
		return ErrMissingElement
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}

// Config holds daemon configuration.
type Config struct {
	ListenAddr string
	// AutoStart walks the element to Streaming once the pipeline runs.
	AutoStart bool

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

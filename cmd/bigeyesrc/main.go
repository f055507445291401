// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command bigeyesrc captures a UVC dual-fisheye camera into a GStreamer
// pipeline and exposes the capture element over a small control API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ManuGH/bigeye/internal/api"
	"github.com/ManuGH/bigeye/internal/bus"
	"github.com/ManuGH/bigeye/internal/config"
	"github.com/ManuGH/bigeye/internal/daemon"
	"github.com/ManuGH/bigeye/internal/element"
	"github.com/ManuGH/bigeye/internal/gstsink"
	"github.com/ManuGH/bigeye/internal/health"
	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/telemetry"
	"github.com/ManuGH/bigeye/internal/uvc"
	"github.com/ManuGH/bigeye/internal/uvc/usbprobe"
	"github.com/ManuGH/bigeye/internal/uvc/v4l2"
	"github.com/ManuGH/bigeye/internal/version"
)

const serviceName = "bigeyesrc"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	listDevices := flag.Bool("list-devices", false, "print matching cameras as JSON and exit")
	noAutoStart := flag.Bool("no-autostart", false, "leave the element stopped until started over the API")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	xlog.Configure(xlog.Config{Level: "info", Service: serviceName, Version: version.Version})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = config.ParseString(config.EnvPrefix+"CONFIG", "")
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	xlog.Configure(xlog.Config{Level: cfg.Log.Level, Service: serviceName, Version: version.Version})
	logger = xlog.WithComponent("main")
	for _, key := range loader.UnknownEnvKeys(os.Environ()) {
		logger.Warn().Str("key", key).Str("event", "config.unknown_env").Msg("ignoring unknown environment variable")
	}

	drv := v4l2.New(cfg.V4L2())
	cache := uvc.NewCache(enumerator(cfg, drv), cfg.Device.DevDir, "video")

	if *listDevices {
		os.Exit(printDevices(ctx, cache, cfg.Selector()))
	}

	if err := run(ctx, cfg, drv, cache, !*noAutoStart, logger); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("bigeyesrc stopped with error")
		os.Exit(1)
	}
}

func enumerator(cfg config.Config, drv *v4l2.Driver) uvc.Enumerator {
	if cfg.Device.Backend == config.BackendUSB {
		return usbprobe.Enumerator{USB: usbprobe.Probe{ReadStrings: true}, Nodes: drv}
	}
	return drv
}

func run(ctx context.Context, cfg config.Config, drv uvc.Driver, cache *uvc.Cache, autoStart bool, logger zerolog.Logger) error {
	if err := health.PerformStartupChecks(cfg); err != nil {
		return err
	}

	tp, err := telemetry.NewProvider(ctx, cfg.Tracing(serviceName, version.Version))
	if err != nil {
		logger.Warn().Err(err).Str("event", "telemetry.init_failed").Msg("continuing without tracing")
	}

	msgBus := bus.NewMemoryBus()
	opts := []element.Option{element.WithBus(msgBus), element.WithEnumerator(cache)}

	var pipeline *gstsink.Pipeline
	if cfg.Pipeline.Launch != "" {
		pipeline, err = gstsink.New(cfg.Pipeline.Launch, cfg.Pipeline.AppSrc)
		if err != nil {
			return err
		}
		opts = append(opts, element.WithSink(pipeline))
	}

	el, err := element.New(drv, cfg.Element(), opts...)
	if err != nil {
		return err
	}

	hm := health.NewManager(version.Version, el, health.NewDeviceNodeChecker(cfg.Device.Path))

	deps := daemon.Deps{
		Logger:     xlog.Base(),
		Element:    el,
		APIHandler: api.New(el, hm, cache).Routes(),
		Bus:        msgBus,
		Watchers:   []daemon.Watcher{cache},
	}
	if pipeline != nil {
		deps.Pipeline = pipeline
	}

	app, err := daemon.NewApp(daemon.Config{ListenAddr: cfg.API.Listen, AutoStart: autoStart}, deps)
	if err != nil {
		return err
	}
	if tp != nil {
		app.RegisterShutdownHook("telemetry", tp.Shutdown)
	}

	logger.Info().
		Str("event", "daemon.start").
		Str("version", version.Version).
		Str(xlog.FieldBackend, cfg.Device.Backend).
		Str("selector", cfg.Selector().String()).
		Str("request", cfg.Request().String()).
		Msg("starting bigeyesrc")
	return app.Run(ctx)
}

type deviceJSON struct {
	ID       string `json:"id"`
	Bus      int    `json:"bus"`
	Addr     int    `json:"address"`
	Path     string `json:"path"`
	Serial   string `json:"serial,omitempty"`
	Name     string `json:"name,omitempty"`
	Selected bool   `json:"selected"`
}

func printDevices(ctx context.Context, en uvc.Enumerator, sel uvc.Selector) int {
	devs, err := en.Enumerate(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "enumerate:", err)
		return 1
	}
	out := make([]deviceJSON, 0, len(devs))
	for _, d := range devs {
		out = append(out, deviceJSON{
			ID: d.ID(), Bus: d.Bus, Addr: d.Address, Path: d.Path,
			Serial: d.Serial, Name: d.Name, Selected: sel.Matches(d),
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 1
	}
	return 0
}

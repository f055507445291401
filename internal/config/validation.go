// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"github.com/ManuGH/bigeye/internal/capture"
	"github.com/ManuGH/bigeye/internal/metrics"
	"github.com/ManuGH/bigeye/internal/uvc"
	"github.com/ManuGH/bigeye/internal/validate"
)

// Validate checks the merged configuration. All problems are reported at once.
func Validate(cfg Config) error {
	v := validate.New()

	v.USBID("device.vendor", cfg.Device.Vendor)
	v.USBID("device.product", cfg.Device.Product)
	v.OneOf("device.backend", cfg.Device.Backend, []string{BackendV4L2, BackendUSB})
	v.NotEmpty("device.sysfs_root", cfg.Device.SysfsRoot)
	v.NotEmpty("device.dev_dir", cfg.Device.DevDir)

	for _, enc := range cfg.Format.Encodings {
		if _, err := uvc.ParseEncoding(enc); err != nil {
			v.AddError("format.encodings", err.Error(), enc)
		}
	}
	v.NonNegative("format.width", cfg.Format.Width)
	v.NonNegative("format.height", cfg.Format.Height)
	v.NonNegative("format.fps", cfg.Format.FPS)
	v.NonNegative("format.max_fps", cfg.Format.MaxFPS)
	if cfg.Format.FPS > 0 && cfg.Format.MaxFPS > 0 && cfg.Format.FPS > cfg.Format.MaxFPS {
		v.AddError("format.fps", "fps exceeds max_fps", cfg.Format.FPS)
	}

	v.NotEmpty("capture.name", cfg.Capture.Name)
	v.Range("capture.queue_capacity", cfg.Capture.QueueCapacity, 1, capture.MaxCapacity)
	v.PositiveDuration("capture.pop_timeout", cfg.Capture.PopTimeout)
	v.PositiveDuration("capture.wait_timeout", cfg.Capture.WaitTimeout)
	v.Range("capture.buffers", cfg.Capture.Buffers, 1, 32)

	if cfg.Pipeline.Launch != "" {
		v.NotEmpty("pipeline.appsrc", cfg.Pipeline.AppSrc)
	}

	v.ListenAddr("api.listen", cfg.API.Listen)

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if !v.IsValid() {
		metrics.IncConfigValidationError()
	}
	return v.Err()
}

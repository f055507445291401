// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/bigeye/internal/capture"
	"github.com/ManuGH/bigeye/internal/element"
)

// Defaults returns the configuration used when neither file nor environment
// sets a value.
func Defaults() Config {
	return Config{
		Device: DeviceConfig{
			Backend:   BackendV4L2,
			SysfsRoot: "/sys/class/video4linux",
			DevDir:    "/dev",
		},
		Format: FormatConfig{
			Encodings: []string{"mjpeg"},
		},
		Capture: CaptureConfig{
			Name:          "bigeyesrc0",
			QueueCapacity: capture.DefaultCapacity,
			PopTimeout:    element.DefaultPopTimeout,
			WaitTimeout:   2 * time.Second,
			Buffers:       4,
		},
		Pipeline: PipelineConfig{
			AppSrc: "src",
		},
		API: APIConfig{
			Listen: ":8088",
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

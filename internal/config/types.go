// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

const (
	BackendV4L2 = "v4l2"
	// BackendUSB enumerates through libusb and attaches the V4L2 capture node.
	BackendUSB = "usb"
)

// Config is the merged runtime configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Format    FormatConfig    `yaml:"format"`
	Capture   CaptureConfig   `yaml:"capture"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DeviceConfig selects the camera. Empty selector fields match any device.
type DeviceConfig struct {
	Vendor    string `yaml:"vendor"`
	Product   string `yaml:"product"`
	Serial    string `yaml:"serial"`
	Path      string `yaml:"path"`
	Backend   string `yaml:"backend"`
	SysfsRoot string `yaml:"sysfs_root"`
	DevDir    string `yaml:"dev_dir"`
}

// FormatConfig is the negotiation request. Zero values leave a dimension unconstrained.
type FormatConfig struct {
	Encodings []string `yaml:"encodings"`
	Width     int      `yaml:"width"`
	Height    int      `yaml:"height"`
	FPS       int      `yaml:"fps"`
	MaxFPS    int      `yaml:"max_fps"`
}

type CaptureConfig struct {
	Name          string        `yaml:"name"`
	QueueCapacity int           `yaml:"queue_capacity"`
	PopTimeout    time.Duration `yaml:"pop_timeout"`
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
	Buffers       int           `yaml:"buffers"`
}

// PipelineConfig describes the host GStreamer pipeline. An empty Launch runs the
// element without a pipeline, controlled over the API only.
type PipelineConfig struct {
	Launch string `yaml:"launch"`
	AppSrc string `yaml:"appsrc"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

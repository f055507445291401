// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"github.com/ManuGH/bigeye/internal/element"
	"github.com/ManuGH/bigeye/internal/negotiate"
	"github.com/ManuGH/bigeye/internal/telemetry"
	"github.com/ManuGH/bigeye/internal/uvc"
	"github.com/ManuGH/bigeye/internal/uvc/v4l2"
	"github.com/ManuGH/bigeye/internal/validate"
)

// The conversions below assume a validated Config.

// Selector returns the device selector.
func (c Config) Selector() uvc.Selector {
	vendor, _ := validate.ParseUSBID(c.Device.Vendor)
	product, _ := validate.ParseUSBID(c.Device.Product)
	return uvc.Selector{
		VendorID:  vendor,
		ProductID: product,
		Serial:    c.Device.Serial,
		Path:      c.Device.Path,
	}
}

// Request returns the negotiation request.
func (c Config) Request() negotiate.Request {
	req := negotiate.Request{
		Width:  c.Format.Width,
		Height: c.Format.Height,
		FPS:    c.Format.FPS,
		MaxFPS: c.Format.MaxFPS,
	}
	for _, name := range c.Format.Encodings {
		if enc, err := uvc.ParseEncoding(name); err == nil {
			req.Encodings = append(req.Encodings, enc)
		}
	}
	return req
}

func (c Config) Element() element.Config {
	return element.Config{
		Name:          c.Capture.Name,
		Selector:      c.Selector(),
		Request:       c.Request(),
		QueueCapacity: c.Capture.QueueCapacity,
		PopTimeout:    c.Capture.PopTimeout,
	}
}

func (c Config) V4L2() v4l2.Config {
	return v4l2.Config{
		SysfsRoot:   c.Device.SysfsRoot,
		DevDir:      c.Device.DevDir,
		WaitTimeout: c.Capture.WaitTimeout,
		Buffers:     uint32(c.Capture.Buffers),
	}
}

// Tracing returns the telemetry config stamped with the build identity.
func (c Config) Tracing(service, version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    service,
		ServiceVersion: version,
		ExporterType:   c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}

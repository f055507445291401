// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/bigeye/internal/uvc"
)

// Attribute keys shared by capture spans.
const (
	DeviceIDKey     = "device.id"
	DevicePathKey   = "device.path"
	DeviceSerialKey = "device.serial"
	DeviceBusKey    = "device.bus"

	FormatEncodingKey   = "format.encoding"
	FormatResolutionKey = "format.resolution"
	FormatFPSKey        = "format.fps"

	ElementNameKey    = "element.name"
	ElementSessionKey = "element.session_id"
	ElementFromKey    = "element.from"
	ElementToKey      = "element.to"
	ElementEventKey   = "element.event"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// DeviceAttributes describes a camera. Empty fields are omitted.
func DeviceAttributes(d uvc.DeviceDescriptor) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(DeviceIDKey, d.ID())}
	if d.Path != "" {
		attrs = append(attrs, attribute.String(DevicePathKey, d.Path))
	}
	if d.Serial != "" {
		attrs = append(attrs, attribute.String(DeviceSerialKey, d.Serial))
	}
	if d.Bus > 0 {
		attrs = append(attrs, attribute.Int(DeviceBusKey, d.Bus))
	}
	return attrs
}

// FormatAttributes describes a negotiated stream format; nil for no format.
func FormatAttributes(f uvc.StreamFormat) []attribute.KeyValue {
	if f.IsZero() {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(FormatEncodingKey, string(f.Encoding)),
		attribute.String(FormatResolutionKey, f.Resolution()),
		attribute.Float64(FormatFPSKey, f.FPS()),
	}
}

// TransitionAttributes describes an element state change.
func TransitionAttributes(name, session, from, event string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(ElementNameKey, name),
		attribute.String(ElementFromKey, from),
		attribute.String(ElementEventKey, event),
	}
	if session != "" {
		attrs = append(attrs, attribute.String(ElementSessionKey, session))
	}
	return attrs
}

// ErrorAttributes tags a span with an error kind.
func ErrorAttributes(kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, kind),
	}
}

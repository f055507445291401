// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics registers the Prometheus collectors of the capture daemon.
// Helpers normalize empty label values so callers never create blank series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesProducedTotal counts frames handed over by the device callback.
	FramesProducedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_frames_produced_total",
		Help: "Total number of frames received from the device callback",
	}, []string{"source"})

	// FramesDroppedTotal counts frames that never reached the pipeline.
	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_frames_dropped_total",
		Help: "Total number of frames dropped before reaching the pipeline by reason",
	}, []string{"source", "reason"})

	// FramesEmittedTotal counts buffers pushed downstream.
	FramesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_frames_emitted_total",
		Help: "Total number of buffers handed to the pipeline",
	}, []string{"source"})

	// FrameBytesTotal counts compressed payload bytes received from the device.
	FrameBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_frame_bytes_total",
		Help: "Total number of payload bytes received from the device",
	}, []string{"source"})

	// QueueDepth tracks the number of frames waiting in the hand-off queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bigeye_queue_depth",
		Help: "Frames currently waiting in the producer/consumer queue",
	}, []string{"source"})

	// DeviceErrorsTotal counts device failures by operation and error kind.
	DeviceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_device_errors_total",
		Help: "Total number of device errors by operation and kind",
	}, []string{"op", "kind"})
)

func sourceLabel(source string) string {
	if source == "" {
		return "default"
	}
	return source
}

// IncFrameProduced records one frame received from the device and its payload size.
func IncFrameProduced(source string, bytes int) {
	source = sourceLabel(source)
	FramesProducedTotal.WithLabelValues(source).Inc()
	FrameBytesTotal.WithLabelValues(source).Add(float64(bytes))
}

// IncFrameDropped records a dropped frame with a concrete reason.
func IncFrameDropped(source, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	FramesDroppedTotal.WithLabelValues(sourceLabel(source), reason).Inc()
}

// IncFrameEmitted records a buffer handed downstream.
func IncFrameEmitted(source string) {
	FramesEmittedTotal.WithLabelValues(sourceLabel(source)).Inc()
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(source string, depth int) {
	QueueDepth.WithLabelValues(sourceLabel(source)).Set(float64(depth))
}

// IncDeviceError records a device failure.
func IncDeviceError(op, kind string) {
	if op == "" {
		op = "unknown"
	}
	if kind == "" {
		kind = "unknown"
	}
	DeviceErrorsTotal.WithLabelValues(op, kind).Inc()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bigeye_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	// APIRequestsTotal counts control API requests by route pattern and status code.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_api_requests_total",
		Help: "Total number of control API requests by route and status",
	}, []string{"route", "status"})

	// PipelineMessagesTotal counts GStreamer bus messages seen by the host pipeline.
	PipelineMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_pipeline_messages_total",
		Help: "Total number of host pipeline bus messages by type",
	}, []string{"type"})
)

func IncConfigValidationError() { configValidationErrors.Inc() }

// IncAPIRequest records one control API request.
func IncAPIRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func IncPipelineMessage(kind string) {
	PipelineMessagesTotal.WithLabelValues(kind).Inc()
}

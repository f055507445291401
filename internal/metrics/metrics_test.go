// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ManuGH/bigeye/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestIncFrameProduced_CountsFramesAndBytes(t *testing.T) {
	frames := counterValue(t, metrics.FramesProducedTotal.WithLabelValues("cam-test"))
	bytes := counterValue(t, metrics.FrameBytesTotal.WithLabelValues("cam-test"))

	metrics.IncFrameProduced("cam-test", 1024)

	assert.Equal(t, frames+1, counterValue(t, metrics.FramesProducedTotal.WithLabelValues("cam-test")))
	assert.Equal(t, bytes+1024, counterValue(t, metrics.FrameBytesTotal.WithLabelValues("cam-test")))
}

func TestSetElementState_OneHot(t *testing.T) {
	all := []string{"stopped", "ready", "paused"}
	metrics.SetElementState("cam-gauge", "ready", all)

	assert.Equal(t, 0.0, gaugeValue(t, metrics.ElementState.WithLabelValues("cam-gauge", "stopped")))
	assert.Equal(t, 1.0, gaugeValue(t, metrics.ElementState.WithLabelValues("cam-gauge", "ready")))
	assert.Equal(t, 0.0, gaugeValue(t, metrics.ElementState.WithLabelValues("cam-gauge", "paused")))
}

func TestEmptyLabelsFallBack(t *testing.T) {
	before := counterValue(t, metrics.DeviceErrorsTotal.WithLabelValues("unknown", "unknown"))
	metrics.IncDeviceError("", "")
	assert.Equal(t, before+1, counterValue(t, metrics.DeviceErrorsTotal.WithLabelValues("unknown", "unknown")))
}

func TestPromhttpExposure(t *testing.T) {
	metrics.IncFrameDropped("cam-expose", "queue_full")

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `bigeye_frames_dropped_total{reason="queue_full",source="cam-expose"}`))
}

func TestIncAPIRequest_UnmatchedRoute(t *testing.T) {
	before := counterValue(t, metrics.APIRequestsTotal.WithLabelValues("unmatched", "404"))
	metrics.IncAPIRequest("", 404)
	assert.Equal(t, before+1, counterValue(t, metrics.APIRequestsTotal.WithLabelValues("unmatched", "404")))
}

func TestIncBusDropReason_Defaults(t *testing.T) {
	before := counterValue(t, metrics.BusDroppedTotal.WithLabelValues("unknown", "unknown"))
	metrics.IncBusDropReason("", "")
	assert.Equal(t, before+1, counterValue(t, metrics.BusDroppedTotal.WithLabelValues("unknown", "unknown")))
}

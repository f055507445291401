// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ElementState is 1 for the element's current state and 0 for all others.
	ElementState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bigeye_element_state",
		Help: "Current lifecycle state of the capture element (1 = active)",
	}, []string{"source", "state"})

	// ElementTransitionsTotal counts lifecycle transitions by outcome.
	ElementTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bigeye_element_transitions_total",
		Help: "Total number of element state transitions by from, event and result",
	}, []string{"source", "from", "event", "result"})
)

// SetElementState marks state as the only active state of source.
func SetElementState(source, state string, all []string) {
	source = sourceLabel(source)
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		ElementState.WithLabelValues(source, s).Set(v)
	}
}

// IncElementTransition records a transition attempt outcome.
func IncElementTransition(source, from, event string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	ElementTransitionsTotal.WithLabelValues(sourceLabel(source), from, event, result).Inc()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package health provides liveness and readiness checks for the capture daemon.
// Readiness follows the element: the daemon is ready once frames flow.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ManuGH/bigeye/internal/element"
	"github.com/ManuGH/bigeye/internal/log"
)

// Status is the outcome of a check or of a whole report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one Checker.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Checker is a named probe evaluated on every request.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// ElementSource is the part of the element the health layer reads.
type ElementSource interface {
	Status() element.Status
}

// ElementReport summarizes the element for probes.
type ElementReport struct {
	Name          string        `json:"name"`
	State         element.State `json:"state"`
	Session       string        `json:"session_id,omitempty"`
	Device        string        `json:"device,omitempty"`
	Format        string        `json:"format,omitempty"`
	FramesDropped uint64        `json:"frames_dropped"`
	LastError     string        `json:"last_error,omitempty"`
}

func reportOf(st element.Status) *ElementReport {
	return &ElementReport{
		Name:          st.Name,
		State:         st.State,
		Session:       st.Session,
		Device:        st.Device,
		Format:        st.Format,
		FramesDropped: st.Queue.Dropped,
		LastError:     st.LastError,
	}
}

// Report is the body of both /healthz and /readyz.
type Report struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    string                 `json:"uptime"`
	Timestamp time.Time              `json:"timestamp"`
	Element   *ElementReport         `json:"element,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Manager evaluates the element and the registered checkers.
type Manager struct {
	version  string
	started  time.Time
	src      ElementSource
	checkers []Checker
}

// NewManager builds a manager. When src is non-nil the element is reported and
// an ElementChecker gates readiness.
func NewManager(version string, src ElementSource, checkers ...Checker) *Manager {
	m := &Manager{version: version, started: time.Now(), src: src}
	if src != nil {
		m.checkers = append(m.checkers, NewElementChecker(src))
	}
	m.checkers = append(m.checkers, checkers...)
	return m
}

// RegisterChecker adds a checker. It is not safe to call while serving.
func (m *Manager) RegisterChecker(c Checker) {
	m.checkers = append(m.checkers, c)
}

// Evaluate runs every checker. Any unhealthy result makes the report not ready;
// degraded results are reported but keep it ready.
func (m *Manager) Evaluate(ctx context.Context) Report {
	r := Report{
		Ready:     true,
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    time.Since(m.started).Truncate(time.Second).String(),
		Timestamp: time.Now(),
	}
	if m.src != nil {
		r.Element = reportOf(m.src.Status())
	}
	if len(m.checkers) == 0 {
		return r
	}

	r.Checks = make(map[string]CheckResult, len(m.checkers))
	for _, c := range m.checkers {
		res := c.Check(ctx)
		r.Checks[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			r.Ready = false
			r.Status = StatusUnhealthy
		case StatusDegraded:
			if r.Status == StatusHealthy {
				r.Status = StatusDegraded
			}
		}
	}
	return r
}

// ServeHealth answers the liveness probe. It is always 200 while the process
// serves; checks are included with ?verbose=true.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	rep := m.Evaluate(r.Context())
	if r.URL.Query().Get("verbose") != "true" {
		rep.Checks = nil
	}
	m.write(w, r, "health", http.StatusOK, rep)
}

// ServeReady answers the readiness probe: 200 while streaming with all checks
// passing, 503 otherwise.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	rep := m.Evaluate(r.Context())
	code := http.StatusOK
	if !rep.Ready {
		code = http.StatusServiceUnavailable
	}
	m.write(w, r, "readiness", code, rep)
}

func (m *Manager) write(w http.ResponseWriter, r *http.Request, probe string, code int, rep Report) {
	logger := log.WithComponentFromContext(r.Context(), probe)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		logger.Error().Err(err).Str("event", probe+".encode_error").Msg("failed to encode probe response")
	}

	ev := logger.Debug().
		Str("event", probe+".checked").
		Str("status", string(rep.Status)).
		Bool("ready", rep.Ready)
	if rep.Element != nil {
		ev = ev.Str(log.FieldState, string(rep.Element.State))
	}
	ev.Msg("probe evaluated")
}

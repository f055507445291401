// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the element over HTTP: health, status, device listing
// and lifecycle control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/bigeye/internal/element"
	"github.com/ManuGH/bigeye/internal/fsm"
	"github.com/ManuGH/bigeye/internal/health"
	"github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/uvc"
)

// Controller is the element surface the API drives.
type Controller interface {
	Status() element.Status
	SetState(ctx context.Context, target element.State) error
	Reset(ctx context.Context) error
}

// Server serves the control API.
type Server struct {
	ctrl    Controller
	health  *health.Manager
	devices uvc.Enumerator
	logger  zerolog.Logger
}

// New builds a server. devices may be nil, which disables /devices.
func New(ctrl Controller, hm *health.Manager, devices uvc.Enumerator) *Server {
	return &Server{
		ctrl:    ctrl,
		health:  hm,
		devices: devices,
		logger:  log.WithComponent("api"),
	}
}

// Routes returns the router with the middleware stack applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing("bigeye.api"))
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(Metrics)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/status", s.handleStatus)
	r.Get("/devices", s.handleDevices)
	r.Post("/state/{state}", s.handleSetState)
	r.Post("/reset", s.handleReset)
	return r
}

type errorResponse struct {
	Error       string `json:"error"`
	Kind        string `json:"kind,omitempty"`
	Remediation string `json:"remediation,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

type transitionResponse struct {
	errorResponse
	Status element.Status `json:"status"`
}

type deviceView struct {
	ID      string `json:"id"`
	Vendor  string `json:"vendor_id"`
	Product string `json:"product_id"`
	Bus     int    `json:"bus,omitempty"`
	Address int    `json:"address,omitempty"`
	Path    string `json:"path,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Name    string `json:"name,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "device enumeration not available"})
		return
	}
	devs, err := s.devices.Enumerate(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Str("event", "api.enumerate_failed").Msg("device enumeration failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), RequestID: log.RequestIDFromContext(r.Context())})
		return
	}
	out := make([]deviceView, 0, len(devs))
	for _, d := range devs {
		out = append(out, deviceView{
			ID:      d.ID(),
			Vendor:  fmt.Sprintf("%04x", d.VendorID),
			Product: fmt.Sprintf("%04x", d.ProductID),
			Bus:     d.Bus,
			Address: d.Address,
			Path:    d.Path,
			Serial:  d.Serial,
			Name:    d.Name,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	target, err := element.ParseState(chi.URLParam(r, "state"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.respondTransition(w, r, s.ctrl.SetState(r.Context(), target))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.respondTransition(w, r, s.ctrl.Reset(r.Context()))
}

func (s *Server) respondTransition(w http.ResponseWriter, r *http.Request, err error) {
	resp := transitionResponse{Status: s.ctrl.Status()}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Error = err.Error()
	if kind := uvc.KindLabel(err); kind != "unknown" {
		resp.Kind = kind
	}
	resp.RequestID = log.RequestIDFromContext(r.Context())
	var de *uvc.DeviceError
	if errors.As(err, &de) {
		resp.Remediation = de.Remediation()
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor maps transition errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, element.ErrInvalidTarget),
		errors.Is(err, element.ErrNeedsReset),
		errors.Is(err, fsm.ErrInvalidTransition),
		errors.Is(err, uvc.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, uvc.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, uvc.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, uvc.ErrNoMatch), errors.Is(err, uvc.ErrFormatRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, uvc.ErrDeviceGone):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

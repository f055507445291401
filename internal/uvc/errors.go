// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uvc

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Error taxonomy. Match with errors.Is; DeviceError unwraps to one of these.
var (
	ErrNotFound       = errors.New("device not found")
	ErrAccessDenied   = errors.New("device access denied")
	ErrBusy           = errors.New("device busy")
	ErrFormatRejected = errors.New("stream format rejected")
	ErrNoMatch        = errors.New("no matching stream format")
	ErrDeviceGone     = errors.New("device gone")
	ErrClosed         = errors.New("device handle closed")
)

// DeviceError is a device failure carrying the operation, the device identity and
// the error kind so an operator can act on it.
type DeviceError struct {
	Op     string
	Device DeviceDescriptor
	Kind   error
	Err    error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if hint := e.Remediation(); hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *DeviceError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Remediation returns the operator action for the error kind.
func (e *DeviceError) Remediation() string {
	switch e.Kind {
	case ErrAccessDenied:
		node := e.Device.Path
		if node == "" {
			node = fmt.Sprintf("/dev/bus/usb/%03d/%03d", e.Device.Bus, e.Device.Address)
		}
		return fmt.Sprintf("grant access to %s, e.g. add the user to the video group or install a udev rule for %s, then retry",
			node, e.Device.ID())
	case ErrNotFound:
		return "check the cable and the device selector"
	case ErrBusy:
		return "another process or element holds the device; stop it first"
	case ErrDeviceGone:
		return "reconnect the camera and reset the element"
	default:
		return ""
	}
}

// NewDeviceError builds a DeviceError. If err already is a DeviceError it is
// returned unchanged so the innermost operation keeps its context.
func NewDeviceError(op string, dev DeviceDescriptor, kind, err error) error {
	var de *DeviceError
	if errors.As(err, &de) {
		return de
	}
	return &DeviceError{Op: op, Device: dev, Kind: kind, Err: err}
}

// ClassifyOpen maps an open-time OS error to the taxonomy.
func ClassifyOpen(err error) error {
	switch {
	case err == nil:
		return nil
	case isKind(err):
		return kindOf(err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return ErrAccessDenied
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return ErrNotFound
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
		return ErrBusy
	default:
		return ErrNotFound
	}
}

// ClassifyStream maps an error raised while starting or running a stream.
// Disconnect-style errnos mean the device is gone; anything else while starting is
// a rejected format.
func ClassifyStream(err error) error {
	switch {
	case err == nil:
		return nil
	case isKind(err):
		return kindOf(err)
	case errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO), errors.Is(err, syscall.EIO),
		errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ESHUTDOWN), errors.Is(err, fs.ErrClosed):
		return ErrDeviceGone
	case errors.Is(err, syscall.EBUSY):
		return ErrBusy
	default:
		return ErrFormatRejected
	}
}

var kinds = []error{ErrNotFound, ErrAccessDenied, ErrBusy, ErrFormatRejected, ErrNoMatch, ErrDeviceGone, ErrClosed}

func isKind(err error) bool {
	return kindOf(err) != nil
}

func kindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindLabel returns a stable snake_case label for metrics and logs.
func KindLabel(err error) string {
	switch kindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrAccessDenied:
		return "access_denied"
	case ErrBusy:
		return "busy"
	case ErrFormatRejected:
		return "format_rejected"
	case ErrNoMatch:
		return "no_match"
	case ErrDeviceGone:
		return "device_gone"
	case ErrClosed:
		return "closed"
	default:
		if err == nil {
			return ""
		}
		return "unknown"
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package uvctest provides a scripted in-memory uvc.Driver for tests.
package uvctest

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/bigeye/internal/uvc"
)

// Camera is one simulated device.
type Camera struct {
	Desc    uvc.DeviceDescriptor
	Formats []uvc.StreamFormat
	// OpenErr is returned by Open, e.g. syscall.EACCES.
	OpenErr error
	// StartErr is returned by Start.
	StartErr error
}

// Driver simulates a capture library. A device can be open only once at a time.
type Driver struct {
	mu      sync.Mutex
	cameras []*Camera
	open    map[uvc.DeviceDescriptor]*Device
	last    map[uvc.DeviceDescriptor]*Device
	opens   int
}

// NewDriver returns a driver exposing cams in enumeration order.
func NewDriver(cams ...Camera) *Driver {
	d := &Driver{
		open: make(map[uvc.DeviceDescriptor]*Device),
		last: make(map[uvc.DeviceDescriptor]*Device),
	}
	for i := range cams {
		c := cams[i]
		d.cameras = append(d.cameras, &c)
	}
	return d
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Enumerate(ctx context.Context) ([]uvc.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uvc.DeviceDescriptor, 0, len(d.cameras))
	for _, c := range d.cameras {
		out = append(out, c.Desc)
	}
	return out, nil
}

func (d *Driver) Open(ctx context.Context, desc uvc.DeviceDescriptor) (uvc.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	cam := d.lookup(desc)
	if cam == nil {
		return nil, &fs.PathError{Op: "open", Path: desc.Path, Err: syscall.ENODEV}
	}
	if cam.OpenErr != nil {
		return nil, &fs.PathError{Op: "open", Path: desc.Path, Err: cam.OpenErr}
	}
	if _, busy := d.open[desc]; busy {
		return nil, &fs.PathError{Op: "flock", Path: desc.Path, Err: syscall.EWOULDBLOCK}
	}
	dev := &Device{drv: d, cam: cam}
	d.open[desc] = dev
	d.last[desc] = dev
	d.opens++
	return dev, nil
}

// SetOpenErr changes the error Open reports for desc.
func (d *Driver) SetOpenErr(desc uvc.DeviceDescriptor, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cam := d.lookup(desc); cam != nil {
		cam.OpenErr = err
	}
}

// Unplug removes desc from the enumeration and fails its running stream.
func (d *Driver) Unplug(desc uvc.DeviceDescriptor) {
	d.mu.Lock()
	dev := d.open[desc]
	for i, c := range d.cameras {
		if c.Desc == desc {
			d.cameras = append(d.cameras[:i], d.cameras[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	if dev != nil {
		dev.Fail(syscall.ENODEV)
	}
}

// Device returns the most recently opened device for desc, or nil.
func (d *Driver) Device(desc uvc.DeviceDescriptor) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last[desc]
}

// Opens returns how many successful opens happened.
func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// OpenCount returns how many devices are currently open.
func (d *Driver) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

func (d *Driver) lookup(desc uvc.DeviceDescriptor) *Camera {
	for _, c := range d.cameras {
		if c.Desc == desc {
			return c
		}
	}
	return nil
}

func (d *Driver) release(desc uvc.DeviceDescriptor, dev *Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open[desc] == dev {
		delete(d.open, desc)
	}
}

// Device is one simulated open camera. Tests drive frames with Emit and failures
// with Fail; both run the callback on the calling goroutine.
type Device struct {
	drv *Driver
	cam *Camera

	mu       sync.Mutex
	closed   bool
	running  bool
	failed   bool
	cb       uvc.Callback
	format   uvc.StreamFormat
	inflight sync.WaitGroup
	starts   int
	stops    int
	started  time.Time
}

var errDeviceClosed = errors.New("fake device closed")

func (d *Device) Formats() ([]uvc.StreamFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fs.ErrClosed
	}
	return append([]uvc.StreamFormat(nil), d.cam.Formats...), nil
}

func (d *Device) Start(format uvc.StreamFormat, cb uvc.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.closed:
		return fs.ErrClosed
	case d.running:
		return syscall.EBUSY
	case d.cam.StartErr != nil:
		return d.cam.StartErr
	case !uvc.Contains(d.cam.Formats, format):
		return syscall.EINVAL
	}
	d.running = true
	d.failed = false
	d.cb = cb
	d.format = format
	d.starts++
	d.started = time.Now()
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	if d.running {
		d.stops++
	}
	d.running = false
	d.cb = nil
	d.mu.Unlock()
	d.inflight.Wait()
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errDeviceClosed
	}
	d.closed = true
	d.running = false
	d.cb = nil
	d.mu.Unlock()
	d.inflight.Wait()
	d.drv.release(d.cam.Desc, d)
	return nil
}

// Emit delivers one frame stamped with the time since Start. It reports whether a
// callback was registered.
func (d *Device) Emit(data []byte) bool {
	return d.deliver(uvc.Transfer{Data: data}, nil, true)
}

// EmitAt delivers one frame with an explicit capture offset.
func (d *Device) EmitAt(data []byte, captured time.Duration) bool {
	return d.deliver(uvc.Transfer{Data: data, Captured: captured}, nil, false)
}

// Fail delivers a transport error. No transfers follow it until the next Start.
func (d *Device) Fail(err error) bool {
	return d.deliver(uvc.Transfer{}, err, false)
}

func (d *Device) deliver(t uvc.Transfer, err error, stamp bool) bool {
	d.mu.Lock()
	if !d.running || d.failed || d.cb == nil {
		d.mu.Unlock()
		return false
	}
	cb := d.cb
	if err != nil {
		d.failed = true
	}
	if stamp {
		t.Captured = time.Since(d.started)
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	cb(t, err)
	return true
}

// Streaming reports whether a callback is registered.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running && !d.failed
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Format returns the format passed to the last Start.
func (d *Device) Format() uvc.StreamFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// Starts returns how many times Start succeeded.
func (d *Device) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Stops returns how many running streams were stopped.
func (d *Device) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// DualFisheye returns a camera advertising the usual dual-fisheye format list.
func DualFisheye(path string) Camera {
	return Camera{
		Desc: uvc.DeviceDescriptor{
			VendorID:  0x2e1a,
			ProductID: 0x0002,
			Bus:       1,
			Address:   4,
			Path:      path,
			Serial:    "BE0001",
			Name:      "Dual Fisheye Camera",
		},
		Formats: []uvc.StreamFormat{
			{Encoding: uvc.EncodingMJPEG, Width: 1280, Height: 720, Interval: uvc.IntervalFromFPS(30)},
			{Encoding: uvc.EncodingMJPEG, Width: 640, Height: 480, Interval: uvc.IntervalFromFPS(60)},
			{Encoding: uvc.EncodingMJPEG, Width: 640, Height: 480, Interval: uvc.IntervalFromFPS(30)},
			{Encoding: uvc.EncodingYUYV, Width: 640, Height: 480, Interval: uvc.IntervalFromFPS(30)},
		},
	}
}

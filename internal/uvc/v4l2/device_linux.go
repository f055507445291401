// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build linux

package v4l2

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/blackjack/webcam"
	"golang.org/x/sys/unix"

	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/uvc"
)

// Open claims the node with a non-blocking exclusive flock, then opens it for
// capture. The claim is held until Close.
func (d *Driver) Open(ctx context.Context, desc uvc.DeviceDescriptor) (uvc.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if desc.Path == "" {
		return nil, &os.PathError{Op: "open", Path: desc.ID(), Err: syscall.ENODEV}
	}

	lock, err := os.OpenFile(desc.Path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = lock.Close()
		return nil, &os.PathError{Op: "flock", Path: desc.Path, Err: err}
	}

	cam, err := webcam.Open(desc.Path)
	if err != nil {
		_ = unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		_ = lock.Close()
		return nil, &os.PathError{Op: "open", Path: desc.Path, Err: err}
	}
	if err := cam.SetBufferCount(d.buffers); err != nil {
		logger := xlog.WithComponent("v4l2")
		logger.Debug().Err(err).
			Str(xlog.FieldDevPath, desc.Path).
			Msg("buffer count not accepted, using driver default")
	}

	return &device{desc: desc, cam: cam, lock: lock, wait: d.wait}, nil
}

type device struct {
	desc uvc.DeviceDescriptor
	cam  *webcam.Webcam
	lock *os.File
	wait uint32

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Formats lists pixel formats in encoding preference order, each expanded to its
// frame sizes and frame intervals in driver order. Stepwise ranges contribute
// their bounds.
func (d *device) Formats() ([]uvc.StreamFormat, error) {
	supported := d.cam.GetSupportedFormats()
	var out []uvc.StreamFormat
	for _, enc := range uvc.Encodings {
		pix, _ := pixelFormatOf(enc)
		if _, ok := supported[webcam.PixelFormat(pix)]; !ok {
			continue
		}
		for _, size := range d.cam.GetSupportedFrameSizes(webcam.PixelFormat(pix)) {
			for _, wh := range sizeBounds(size) {
				rates := d.cam.GetSupportedFramerates(webcam.PixelFormat(pix), wh[0], wh[1])
				for _, iv := range intervalBounds(rates) {
					out = append(out, uvc.StreamFormat{
						Encoding: enc,
						Width:    int(wh[0]),
						Height:   int(wh[1]),
						Interval: iv,
					})
				}
			}
		}
	}
	return out, nil
}

func sizeBounds(s webcam.FrameSize) [][2]uint32 {
	if s.MinWidth == s.MaxWidth && s.MinHeight == s.MaxHeight {
		return [][2]uint32{{s.MaxWidth, s.MaxHeight}}
	}
	return [][2]uint32{{s.MaxWidth, s.MaxHeight}, {s.MinWidth, s.MinHeight}}
}

func intervalBounds(rates []webcam.FrameRate) []uvc.Interval {
	var out []uvc.Interval
	for _, r := range rates {
		fastest := uvc.Interval{Num: r.MinNumerator, Den: r.MaxDenominator}
		if fastest.Num == 0 || fastest.Den == 0 {
			continue
		}
		out = append(out, fastest)
		slowest := uvc.Interval{Num: r.MaxNumerator, Den: r.MinDenominator}
		if slowest.Num != 0 && slowest.Den != 0 && !slowest.Equal(fastest) {
			out = append(out, slowest)
		}
	}
	return out
}

func (d *device) Start(format uvc.StreamFormat, cb uvc.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return syscall.EBUSY
	}

	pix, ok := pixelFormatOf(format.Encoding)
	if !ok {
		return fmt.Errorf("encoding %q: %w", format.Encoding, syscall.EINVAL)
	}
	got, w, h, err := d.cam.SetImageFormat(webcam.PixelFormat(pix), uint32(format.Width), uint32(format.Height))
	if err != nil {
		return fmt.Errorf("set format %s: %w", format, err)
	}
	if uint32(got) != pix || int(w) != format.Width || int(h) != format.Height {
		return fmt.Errorf("driver chose %dx%d for %s: %w", w, h, format, syscall.EINVAL)
	}
	if err := d.cam.SetFramerate(float32(format.FPS())); err != nil {
		return fmt.Errorf("set frame rate %s: %w", format, err)
	}
	if err := d.cam.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(cb, d.stop, d.done)
	return nil
}

func (d *device) loop(cb uvc.Callback, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	start := time.Now()
	for {
		select {
		case <-stop:
			return
		default:
		}

		err := d.cam.WaitForFrame(d.wait)
		// webcam does not expose the v4l2 buffer timestamp; readiness is the
		// closest user-space reading.
		captured := time.Since(start)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			cb(uvc.Transfer{}, err)
			return
		}

		frame, err := d.cam.ReadFrame()
		if err != nil {
			cb(uvc.Transfer{}, err)
			return
		}
		if len(frame) == 0 {
			continue
		}
		// ReadFrame returns the mmap buffer, which the driver reuses.
		cb(uvc.Transfer{Data: bytes.Clone(frame), Captured: captured}, nil)
	}
}

func (d *device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	<-d.done
	d.stop, d.done = nil, nil
	return d.cam.StopStreaming()
}

func (d *device) Close() error {
	stopErr := d.Stop()
	closeErr := d.cam.Close()
	_ = unix.Flock(int(d.lock.Fd()), unix.LOCK_UN)
	lockErr := d.lock.Close()
	switch {
	case closeErr != nil:
		return closeErr
	case stopErr != nil:
		return stopErr
	default:
		return lockErr
	}
}

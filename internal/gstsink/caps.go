// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package gstsink feeds element buffers into a GStreamer pipeline through appsrc.
package gstsink

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/bigeye/internal/uvc"
)

// ErrUnsupportedFormat is returned for encodings without a caps mapping.
var ErrUnsupportedFormat = errors.New("gstsink: unsupported format")

// CapsString renders the appsrc caps for a negotiated format.
func CapsString(f uvc.StreamFormat) (string, error) {
	if f.IsZero() {
		return "", fmt.Errorf("%w: no format", ErrUnsupportedFormat)
	}
	var media string
	switch f.Encoding {
	case uvc.EncodingMJPEG:
		media = "image/jpeg"
	case uvc.EncodingH264:
		media = "video/x-h264,stream-format=byte-stream,alignment=au"
	case uvc.EncodingYUYV:
		media = "video/x-raw,format=YUY2"
	case uvc.EncodingNV12:
		media = "video/x-raw,format=NV12"
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Encoding)
	}
	caps := fmt.Sprintf("%s,width=%d,height=%d", media, f.Width, f.Height)
	if r := framerate(f.Interval); r != "" {
		caps += ",framerate=" + r
	}
	return caps, nil
}

// UnboundedLatency leaves the maximum latency of a live source open.
const UnboundedLatency time.Duration = -1

// Latency is what the live source reports to the pipeline: a frame cannot be
// pushed before it has been captured, so the minimum is one frame period. The
// maximum is unbounded. ok is false when the format carries no interval.
func Latency(f uvc.StreamFormat) (minLatency, maxLatency time.Duration, ok bool) {
	d := f.Interval.Duration()
	if d <= 0 {
		return 0, 0, false
	}
	return d, UnboundedLatency, true
}

// framerate inverts the frame interval into a GStreamer fraction.
func framerate(i uvc.Interval) string {
	if i.Num == 0 || i.Den == 0 {
		return ""
	}
	num, den := i.Den, i.Num
	g := gcd(num, den)
	return fmt.Sprintf("%d/%d", num/g, den/g)
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

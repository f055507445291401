// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uvc

import (
	"fmt"
	"strings"
	"time"
)

// Encoding is the payload encoding advertised by a stream format.
type Encoding string

const (
	EncodingMJPEG Encoding = "mjpeg"
	EncodingH264  Encoding = "h264"
	EncodingYUYV  Encoding = "yuyv"
	EncodingNV12  Encoding = "nv12"
)

// Encodings lists all known encodings in preference order.
var Encodings = []Encoding{EncodingMJPEG, EncodingH264, EncodingYUYV, EncodingNV12}

// ParseEncoding parses a case-insensitive encoding name. "mjpg" and "jpeg" are
// accepted as aliases for mjpeg, "yuy2" for yuyv.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mjpeg", "mjpg", "jpeg":
		return EncodingMJPEG, nil
	case "h264", "avc":
		return EncodingH264, nil
	case "yuyv", "yuy2":
		return EncodingYUYV, nil
	case "nv12":
		return EncodingNV12, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

// Compressed reports whether the encoding carries a compressed payload.
func (e Encoding) Compressed() bool {
	return e == EncodingMJPEG || e == EncodingH264
}

// DeviceDescriptor identifies a physical camera. It is immutable once discovered.
type DeviceDescriptor struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
	Path      string // capture node, e.g. /dev/video0
	Serial    string
	Name      string
}

// ID returns the vendor:product pair in lsusb notation.
func (d DeviceDescriptor) ID() string {
	return fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)
}

// String renders everything an operator needs to locate the device.
func (d DeviceDescriptor) String() string {
	var b strings.Builder
	b.WriteString(d.ID())
	if d.Bus > 0 || d.Address > 0 {
		fmt.Fprintf(&b, " bus %03d device %03d", d.Bus, d.Address)
	}
	if d.Path != "" {
		fmt.Fprintf(&b, " (%s)", d.Path)
	}
	return b.String()
}

// Selector picks a device from an enumeration. Zero fields match anything.
type Selector struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
	Path      string
}

// Matches reports whether d satisfies every non-zero field of s.
func (s Selector) Matches(d DeviceDescriptor) bool {
	if s.VendorID != 0 && s.VendorID != d.VendorID {
		return false
	}
	if s.ProductID != 0 && s.ProductID != d.ProductID {
		return false
	}
	if s.Serial != "" && s.Serial != d.Serial {
		return false
	}
	if s.Path != "" && s.Path != d.Path {
		return false
	}
	return true
}

// Pick returns the first matching device in enumeration order.
func (s Selector) Pick(devices []DeviceDescriptor) (DeviceDescriptor, error) {
	for _, d := range devices {
		if s.Matches(d) {
			return d, nil
		}
	}
	return DeviceDescriptor{}, &DeviceError{
		Op:     "find",
		Device: DeviceDescriptor{VendorID: s.VendorID, ProductID: s.ProductID, Path: s.Path, Serial: s.Serial},
		Kind:   ErrNotFound,
		Err:    fmt.Errorf("no device matches %s among %d enumerated", s, len(devices)),
	}
}

func (s Selector) String() string {
	parts := make([]string, 0, 4)
	if s.VendorID != 0 || s.ProductID != 0 {
		parts = append(parts, fmt.Sprintf("%04x:%04x", s.VendorID, s.ProductID))
	}
	if s.Serial != "" {
		parts = append(parts, "serial="+s.Serial)
	}
	if s.Path != "" {
		parts = append(parts, "path="+s.Path)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// Interval is the frame period as a fraction of seconds (Num/Den), the unit V4L2
// and UVC descriptors use. 30 fps is {1, 30}.
type Interval struct {
	Num uint32
	Den uint32
}

// IntervalFromFPS returns the interval for an integral frame rate.
func IntervalFromFPS(fps int) Interval {
	if fps <= 0 {
		return Interval{}
	}
	return Interval{Num: 1, Den: uint32(fps)}
}

// FPS returns the frame rate, or 0 for an unset interval.
func (i Interval) FPS() float64 {
	if i.Num == 0 || i.Den == 0 {
		return 0
	}
	return float64(i.Den) / float64(i.Num)
}

// Duration returns the frame period.
func (i Interval) Duration() time.Duration {
	if i.Num == 0 || i.Den == 0 {
		return 0
	}
	return time.Duration(uint64(i.Num) * uint64(time.Second) / uint64(i.Den))
}

// Equal compares two intervals as rationals, so 1/30 equals 2/60.
func (i Interval) Equal(o Interval) bool {
	return uint64(i.Num)*uint64(o.Den) == uint64(o.Num)*uint64(i.Den)
}

// Faster reports whether i has a strictly higher frame rate than o.
func (i Interval) Faster(o Interval) bool {
	// i.Den/i.Num > o.Den/o.Num
	return uint64(i.Den)*uint64(o.Num) > uint64(o.Den)*uint64(i.Num)
}

// StreamFormat is one advertised (encoding, size, interval) combination.
type StreamFormat struct {
	Encoding Encoding
	Width    int
	Height   int
	Interval Interval
}

// Pixels returns width*height.
func (f StreamFormat) Pixels() int {
	return f.Width * f.Height
}

// FPS returns the frame rate of the format.
func (f StreamFormat) FPS() float64 {
	return f.Interval.FPS()
}

// Resolution renders WxH.
func (f StreamFormat) Resolution() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Equal compares formats with rational interval equality.
func (f StreamFormat) Equal(o StreamFormat) bool {
	return f.Encoding == o.Encoding && f.Width == o.Width && f.Height == o.Height && f.Interval.Equal(o.Interval)
}

// IsZero reports whether no format has been set.
func (f StreamFormat) IsZero() bool {
	return f.Encoding == "" && f.Width == 0 && f.Height == 0
}

func (f StreamFormat) String() string {
	if f.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s %dx%d@%s", f.Encoding, f.Width, f.Height, formatFPS(f.FPS()))
}

func formatFPS(fps float64) string {
	if fps == float64(int64(fps)) {
		return fmt.Sprintf("%d", int64(fps))
	}
	return fmt.Sprintf("%.2f", fps)
}

// Contains reports whether formats holds an entry equal to f.
func Contains(formats []StreamFormat, f StreamFormat) bool {
	for _, c := range formats {
		if c.Equal(f) {
			return true
		}
	}
	return false
}

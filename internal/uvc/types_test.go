// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	cases := map[string]Encoding{
		"mjpeg": EncodingMJPEG,
		"MJPG":  EncodingMJPEG,
		"jpeg":  EncodingMJPEG,
		"h264":  EncodingH264,
		"avc":   EncodingH264,
		" yuy2": EncodingYUYV,
		"nv12":  EncodingNV12,
	}
	for in, want := range cases {
		got, err := ParseEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEncoding("vp8")
	assert.Error(t, err)
}

func TestInterval(t *testing.T) {
	i := IntervalFromFPS(30)
	assert.Equal(t, Interval{Num: 1, Den: 30}, i)
	assert.InDelta(t, 30.0, i.FPS(), 1e-9)
	assert.Equal(t, 33333333*time.Nanosecond, i.Duration())
	assert.True(t, i.Equal(Interval{Num: 2, Den: 60}))
	assert.True(t, IntervalFromFPS(60).Faster(i))
	assert.False(t, i.Faster(i))
	assert.Zero(t, Interval{}.FPS())
	assert.Zero(t, IntervalFromFPS(0).Duration())
}

func TestStreamFormatString(t *testing.T) {
	f := StreamFormat{Encoding: EncodingMJPEG, Width: 1280, Height: 720, Interval: IntervalFromFPS(30)}
	assert.Equal(t, "mjpeg 1280x720@30", f.String())
	assert.Equal(t, "1280x720", f.Resolution())
	assert.Equal(t, 1280*720, f.Pixels())

	ntsc := StreamFormat{Encoding: EncodingYUYV, Width: 640, Height: 480, Interval: Interval{Num: 1001, Den: 30000}}
	assert.Equal(t, "yuyv 640x480@29.97", ntsc.String())
	assert.Equal(t, "none", StreamFormat{}.String())
}

func TestSelectorPick(t *testing.T) {
	devs := []DeviceDescriptor{
		{VendorID: 0x046d, ProductID: 0x0825, Path: "/dev/video0"},
		{VendorID: 0x2e1a, ProductID: 0x0002, Path: "/dev/video2", Serial: "A"},
		{VendorID: 0x2e1a, ProductID: 0x0002, Path: "/dev/video4", Serial: "B"},
	}

	got, err := Selector{VendorID: 0x2e1a, ProductID: 0x0002}.Pick(devs)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video2", got.Path, "first match in enumeration order")

	got, err = Selector{Serial: "B"}.Pick(devs)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video4", got.Path)

	got, err = Selector{}.Pick(devs)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video0", got.Path)

	_, err = Selector{VendorID: 0xffff}.Pick(devs)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "ffff:0000")
}

func TestDescriptorString(t *testing.T) {
	d := DeviceDescriptor{VendorID: 0x2e1a, ProductID: 0x0002, Bus: 1, Address: 4, Path: "/dev/video0"}
	assert.Equal(t, "2e1a:0002 bus 001 device 004 (/dev/video0)", d.String())
	assert.Equal(t, "2e1a:0002", DeviceDescriptor{VendorID: 0x2e1a, ProductID: 2}.String())
}

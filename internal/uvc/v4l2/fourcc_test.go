// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package v4l2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/bigeye/internal/uvc"
)

func TestFourCC(t *testing.T) {
	// V4L2_PIX_FMT_MJPEG and V4L2_PIX_FMT_YUYV.
	assert.Equal(t, uint32(0x47504A4D), pixMJPEG)
	assert.Equal(t, uint32(0x56595559), pixYUYV)

	for _, enc := range uvc.Encodings {
		pix, ok := pixelFormatOf(enc)
		assert.True(t, ok, enc)
		back, ok := encodingOf(pix)
		assert.True(t, ok)
		assert.Equal(t, enc, back)
	}
	_, ok := encodingOf(fourcc("GREY"))
	assert.False(t, ok)
}

func TestNewRoundsWaitUp(t *testing.T) {
	assert.Equal(t, uint32(2), New(Config{}).wait)
	assert.Equal(t, uint32(1), New(Config{WaitTimeout: 300 * time.Millisecond}).wait)
	assert.Equal(t, uint32(3), New(Config{WaitTimeout: 2500 * time.Millisecond}).wait)
	assert.Equal(t, uint32(defaultBuffers), New(Config{}).buffers)
	assert.Equal(t, "v4l2", New(Config{}).Name())
}

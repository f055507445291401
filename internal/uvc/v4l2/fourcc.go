// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package v4l2

import "github.com/ManuGH/bigeye/internal/uvc"

func fourcc(s string) uint32 {
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}

var (
	pixMJPEG = fourcc("MJPG")
	pixH264  = fourcc("H264")
	pixYUYV  = fourcc("YUYV")
	pixNV12  = fourcc("NV12")
)

func encodingOf(pix uint32) (uvc.Encoding, bool) {
	switch pix {
	case pixMJPEG:
		return uvc.EncodingMJPEG, true
	case pixH264:
		return uvc.EncodingH264, true
	case pixYUYV:
		return uvc.EncodingYUYV, true
	case pixNV12:
		return uvc.EncodingNV12, true
	default:
		return "", false
	}
}

func pixelFormatOf(enc uvc.Encoding) (uint32, bool) {
	switch enc {
	case uvc.EncodingMJPEG:
		return pixMJPEG, true
	case uvc.EncodingH264:
		return pixH264, true
	case uvc.EncodingYUYV:
		return pixYUYV, true
	case uvc.EncodingNV12:
		return pixNV12, true
	default:
		return 0, false
	}
}

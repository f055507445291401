// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package negotiate picks one advertised stream format for a set of constraints.
package negotiate

import (
	"fmt"
	"math"
	"strings"

	"github.com/ManuGH/bigeye/internal/uvc"
)

// Request holds the caller's constraints. Zero fields are unconstrained.
type Request struct {
	// Encodings lists accepted encodings in preference order. Empty prefers
	// MJPEG and falls back to anything the device offers.
	Encodings []uvc.Encoding
	Width     int
	Height    int
	// FPS requests an exact rate. Rates are compared after rounding, so a
	// 30000/1001 entry satisfies 30.
	FPS int
	// MaxFPS caps the rate.
	MaxFPS int
}

func (r Request) String() string {
	var parts []string
	if len(r.Encodings) > 0 {
		encs := make([]string, len(r.Encodings))
		for i, e := range r.Encodings {
			encs[i] = string(e)
		}
		parts = append(parts, "encodings="+strings.Join(encs, ","))
	}
	if r.Width > 0 || r.Height > 0 {
		parts = append(parts, fmt.Sprintf("size=%dx%d", r.Width, r.Height))
	}
	if r.FPS > 0 {
		parts = append(parts, fmt.Sprintf("fps=%d", r.FPS))
	}
	if r.MaxFPS > 0 {
		parts = append(parts, fmt.Sprintf("max_fps=%d", r.MaxFPS))
	}
	if len(parts) == 0 {
		return "unconstrained"
	}
	return strings.Join(parts, " ")
}

// Select returns the advertised format best matching req. The result is always an
// element of available. Ties go to the earliest entry, so equal inputs give equal
// outputs. It fails with uvc.ErrNoMatch.
func Select(available []uvc.StreamFormat, req Request) (uvc.StreamFormat, error) {
	for _, group := range encodingGroups(available, req.Encodings) {
		if f, ok := pick(group, req); ok {
			return f, nil
		}
	}
	return uvc.StreamFormat{}, fmt.Errorf("%w: %s among %d advertised formats", uvc.ErrNoMatch, req, len(available))
}

// encodingGroups returns the candidate sets to try in order.
func encodingGroups(available []uvc.StreamFormat, accepted []uvc.Encoding) [][]uvc.StreamFormat {
	if len(accepted) > 0 {
		groups := make([][]uvc.StreamFormat, 0, len(accepted))
		for _, enc := range accepted {
			if g := withEncoding(available, enc); len(g) > 0 {
				groups = append(groups, g)
			}
		}
		return groups
	}
	if g := withEncoding(available, uvc.EncodingMJPEG); len(g) > 0 {
		return [][]uvc.StreamFormat{g, available}
	}
	return [][]uvc.StreamFormat{available}
}

func withEncoding(formats []uvc.StreamFormat, enc uvc.Encoding) []uvc.StreamFormat {
	var out []uvc.StreamFormat
	for _, f := range formats {
		if f.Encoding == enc {
			out = append(out, f)
		}
	}
	return out
}

func pick(formats []uvc.StreamFormat, req Request) (uvc.StreamFormat, bool) {
	var fit []uvc.StreamFormat
	for _, f := range formats {
		if req.Width > 0 && f.Width != req.Width {
			continue
		}
		if req.Height > 0 && f.Height != req.Height {
			continue
		}
		if req.FPS > 0 && int(math.Round(f.FPS())) != req.FPS {
			continue
		}
		if req.MaxFPS > 0 && f.FPS() > float64(req.MaxFPS)+1e-6 {
			continue
		}
		if f.Interval.Num == 0 || f.Interval.Den == 0 {
			continue
		}
		fit = append(fit, f)
	}
	if len(fit) == 0 {
		return uvc.StreamFormat{}, false
	}

	// Highest resolution, first in order on ties.
	best := fit[0]
	for _, f := range fit[1:] {
		if f.Pixels() > best.Pixels() {
			best = f
		}
	}
	// Highest rate at that resolution.
	for _, f := range fit {
		if f.Width == best.Width && f.Height == best.Height && f.Interval.Faster(best.Interval) {
			best = f
		}
	}
	return best, true
}

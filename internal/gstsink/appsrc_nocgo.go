// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !cgo

package gstsink

import (
	"context"
	"errors"

	"github.com/ManuGH/bigeye/internal/element"
)

// ErrCGORequired is returned when the binary was built without cgo.
var ErrCGORequired = errors.New("gstsink: GStreamer support requires cgo")

type Pipeline struct{}

func New(_, _ string) (*Pipeline, error) { return nil, ErrCGORequired }

func (p *Pipeline) Start() error                                         { return ErrCGORequired }
func (p *Pipeline) Stop() error                                          { return nil }
func (p *Pipeline) Watch(_ context.Context) error                        { return ErrCGORequired }
func (p *Pipeline) PushBuffer(_ context.Context, _ element.Buffer) error { return ErrCGORequired }

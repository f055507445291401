// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus carries element messages (state changes, errors, warnings) to
// the host, the way a pipeline bus does.
package bus

import (
	"context"
	"time"
)

// Kind classifies a Message.
type Kind string

const (
	KindStateChanged Kind = "state-changed"
	KindError        Kind = "error"
	KindWarning      Kind = "warning"
)

// Message is one element notification.
type Message struct {
	Kind    Kind
	Source  string
	Session string
	Old     string
	New     string
	Err     error
	At      time.Time
}

// Bus is a topic-based publish/subscribe channel.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Subscriber receives messages of one topic until closed.
type Subscriber interface {
	C() <-chan Message
	Close() error
}

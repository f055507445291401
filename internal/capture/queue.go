// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultCapacity = 4
	MaxCapacity     = 64
)

var (
	// ErrEmpty is returned by Pop when no frame arrived within the timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrFlushing is returned by Pop while the queue is flushing.
	ErrFlushing = errors.New("queue flushing")
)

// Frame is one captured payload. Captured is the offset on the capture clock.
type Frame struct {
	Seq      uint64
	Captured time.Duration
	Data     []byte
}

// PushResult is the outcome of Queue.Push.
type PushResult int

const (
	Accepted PushResult = iota
	// Dropped means the queue was full and the new frame was discarded.
	Dropped
	// Flushing means the queue refuses frames until re-armed. Not a drop.
	Flushing
)

func (r PushResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	case Flushing:
		return "flushing"
	default:
		return fmt.Sprintf("PushResult(%d)", int(r))
	}
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Capacity int    `json:"capacity"`
	Len      int    `json:"len"`
	Pushed   uint64 `json:"pushed"`
	Dropped  uint64 `json:"dropped"`
	Flushing bool   `json:"flushing"`
}

// Queue is a bounded FIFO between the capture callback and the consumer. Push never
// blocks; when full the incoming frame is dropped so queued frames keep their
// order and age.
type Queue struct {
	mu       sync.Mutex
	ring     []Frame
	head     int
	n        int
	flushing bool
	pushed   uint64
	dropped  uint64
	// changed is closed and replaced whenever a waiter should re-check.
	changed chan struct{}
}

// NewQueue returns a queue holding up to capacity frames (1..MaxCapacity).
func NewQueue(capacity int) (*Queue, error) {
	if capacity < 1 || capacity > MaxCapacity {
		return nil, fmt.Errorf("queue capacity %d out of range 1..%d", capacity, MaxCapacity)
	}
	return &Queue{
		ring:    make([]Frame, capacity),
		changed: make(chan struct{}),
	}, nil
}

// Push offers f without blocking.
func (q *Queue) Push(f Frame) PushResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.flushing {
		return Flushing
	}
	if q.n == len(q.ring) {
		q.dropped++
		return Dropped
	}
	q.ring[(q.head+q.n)%len(q.ring)] = f
	q.n++
	q.pushed++
	q.broadcastLocked()
	return Accepted
}

// Pop returns the oldest frame, waiting up to timeout. It returns ErrEmpty on
// timeout, ErrFlushing while flushing and ctx.Err() on cancellation.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if q.flushing {
			q.mu.Unlock()
			return Frame{}, ErrFlushing
		}
		if q.n > 0 {
			f := q.ring[q.head]
			q.ring[q.head] = Frame{}
			q.head = (q.head + 1) % len(q.ring)
			q.n--
			q.mu.Unlock()
			return f, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return Frame{}, ErrEmpty
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
}

// SetFlushing(true) discards queued frames, refuses new ones and wakes blocked
// Pop calls. SetFlushing(false) re-arms the queue.
func (q *Queue) SetFlushing(flushing bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushing = flushing
	if flushing {
		for i := range q.ring {
			q.ring[i] = Frame{}
		}
		q.head, q.n = 0, 0
	}
	q.broadcastLocked()
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Capacity: len(q.ring),
		Len:      q.n,
		Pushed:   q.pushed,
		Dropped:  q.dropped,
		Flushing: q.flushing,
	}
}

func (q *Queue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

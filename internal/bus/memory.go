// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/metrics"
)

// MemoryBus is an in-process pub/sub. Publish blocks per subscriber until the
// message is queued or ctx is done.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memSub
}

const (
	dropLogEvery   = 100
	subscriberBuf  = 64
	reasonClosed   = "closed"
	reasonTimeout  = "timeout"
	reasonCanceled = "canceled"
)

var dropCount atomic.Uint64

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return reasonTimeout
	case errors.Is(err, context.Canceled):
		return reasonCanceled
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.deliver(ctx, msg); err != nil {
			reason := reasonClosed
			if !errors.Is(err, errSubClosed) {
				reason = publishDropReason(err)
			}
			metrics.IncBusDropReason(topic, reason)
			count := dropCount.Add(1)
			if count%dropLogEvery == 1 {
				xlog.L().Warn().
					Str("topic", topic).
					Str("reason", reason).
					Uint64("dropped", count).
					Msg("memory bus dropped a message")
			}
			if reason == reasonClosed {
				continue
			}
			return fmt.Errorf("publish topic %q: %w", topic, err)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	s := &memSub{b: b, topic: topic, ch: make(chan Message, subscriberBuf), done: make(chan struct{})}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	return s, nil
}

var errSubClosed = errors.New("subscriber closed")

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message

	// sendMu serializes sends with Close so ch is never written after close.
	sendMu sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

func (s *memSub) deliver(ctx context.Context, msg Message) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return errSubClosed
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return errSubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		s.b.mu.Unlock()

		// Unblock pending deliveries before taking the write lock.
		close(s.done)
		s.sendMu.Lock()
		s.closed = true
		close(s.ch)
		s.sendMu.Unlock()
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package capture moves frames from a device callback to a consumer.
//
// A Producer registers a callback on a device stream, stamps each transfer with a
// sequence number and capture time and offers it to a bounded Queue. The queue
// never blocks the callback. A consumer pops with a bounded timeout and is woken
// immediately when the queue is set flushing.
package capture

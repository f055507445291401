// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package uvc models the camera side of the capture element: device descriptors,
// stream formats, the error taxonomy and the Driver interface wrapping the native
// capture library.
//
// A Handle is the exclusive owner of one opened device. Closing a handle always
// releases the device claim, whether the element stops normally or tears down after
// a fatal error, and closing twice is a no-op.
//
// Drivers deliver frames through a Callback on a goroutine they own. The element
// never shares mutable state with that goroutine except through the capture queue.
package uvc

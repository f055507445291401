// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package v4l2 implements uvc.Driver over Linux uvcvideo capture nodes.
//
// Devices are enumerated from sysfs so USB identity (vendor, product, bus,
// address, serial) is known without opening the node. Capture goes through
// github.com/blackjack/webcam; exclusivity is an advisory flock on the node held
// for the lifetime of the opened device.
package v4l2

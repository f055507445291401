// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package usbprobe lists video-class USB devices through libusb. It sees cameras
// whose capture node is missing or unbound, which sysfs enumeration cannot.
package usbprobe

import (
	"context"
	"sort"

	"github.com/google/gousb"

	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/uvc"
)

// Probe is a uvc.Enumerator over libusb. Descriptors carry no capture node path.
type Probe struct {
	// ReadStrings opens matching devices to read serial and product strings.
	// Devices that cannot be opened are still listed without them.
	ReadStrings bool
}

var _ uvc.Enumerator = Probe{}

// Enumerate lists devices exposing a video-class interface, ordered by bus and
// address.
func (p Probe) Enumerate(ctx context.Context) ([]uvc.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	usb := gousb.NewContext()
	defer func() { _ = usb.Close() }()

	var found []uvc.DeviceDescriptor
	devs, err := usb.OpenDevices(func(d *gousb.DeviceDesc) bool {
		if !IsVideo(d) {
			return false
		}
		found = append(found, Describe(d))
		return p.ReadStrings
	})
	defer func() {
		for _, d := range devs {
			_ = d.Close()
		}
	}()
	if err != nil && len(found) == 0 {
		return nil, err
	}
	if err != nil {
		logger := xlog.WithComponent("usbprobe")
		logger.Debug().Err(err).Msg("some video devices could not be opened for string descriptors")
	}

	for _, d := range devs {
		for i := range found {
			if found[i].Bus != d.Desc.Bus || found[i].Address != d.Desc.Address {
				continue
			}
			if s, err := d.SerialNumber(); err == nil {
				found[i].Serial = s
			}
			if s, err := d.Product(); err == nil {
				found[i].Name = s
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Bus != found[j].Bus {
			return found[i].Bus < found[j].Bus
		}
		return found[i].Address < found[j].Address
	})
	return found, nil
}

// IsVideo reports whether the device or any of its interfaces is video class.
func IsVideo(d *gousb.DeviceDesc) bool {
	if d == nil {
		return false
	}
	if d.Class == gousb.ClassVideo {
		return true
	}
	for _, cfg := range d.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassVideo {
					return true
				}
			}
		}
	}
	return false
}

// Describe converts a libusb descriptor.
func Describe(d *gousb.DeviceDesc) uvc.DeviceDescriptor {
	return uvc.DeviceDescriptor{
		VendorID:  uint16(d.Vendor),
		ProductID: uint16(d.Product),
		Bus:       d.Bus,
		Address:   d.Address,
	}
}

// Attach fills the capture node path of probed devices from nodes, matching on
// bus and address. Devices without a node are returned unchanged.
func Attach(probed, nodes []uvc.DeviceDescriptor) []uvc.DeviceDescriptor {
	out := make([]uvc.DeviceDescriptor, len(probed))
	copy(out, probed)
	for i := range out {
		for _, n := range nodes {
			if n.Bus == out[i].Bus && n.Address == out[i].Address && n.Bus != 0 {
				out[i].Path = n.Path
				if out[i].Serial == "" {
					out[i].Serial = n.Serial
				}
				break
			}
		}
	}
	return out
}

// Enumerator lists USB devices from USB (usually a Probe) and attaches the
// capture nodes found by Nodes. Devices without a node cannot be opened and
// are skipped.
type Enumerator struct {
	USB   uvc.Enumerator
	Nodes uvc.Enumerator
}

func (e Enumerator) Enumerate(ctx context.Context) ([]uvc.DeviceDescriptor, error) {
	probed, err := e.USB.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := e.Nodes.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	attached := Attach(probed, nodes)
	out := attached[:0]
	for _, d := range attached {
		if d.Path != "" {
			out = append(out, d)
		}
	}
	return out, nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	xlog "github.com/ManuGH/bigeye/internal/log"
	"github.com/ManuGH/bigeye/internal/uvc"
)

const (
	DefaultSysfsRoot = "/sys/class/video4linux"
	DefaultDevDir    = "/dev"
)

// Enumerator lists USB capture nodes from sysfs.
type Enumerator struct {
	SysfsRoot string
	DevDir    string
}

// Enumerate returns one descriptor per USB capture node ordered by node number.
// Metadata nodes (index != 0) and non-USB devices are skipped.
func (e Enumerator) Enumerate(ctx context.Context) ([]uvc.DeviceDescriptor, error) {
	root := e.SysfsRoot
	if root == "" {
		root = DefaultSysfsRoot
	}
	devDir := e.DevDir
	if devDir == "" {
		devDir = DefaultDevDir
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if nodeNumber(ent.Name()) >= 0 {
			names = append(names, ent.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return nodeNumber(names[i]) < nodeNumber(names[j]) })

	logger := xlog.WithComponent("v4l2")
	var out []uvc.DeviceDescriptor
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, ok, err := readNode(filepath.Join(root, name))
		if err != nil {
			logger.Debug().Err(err).Str(xlog.FieldDevPath, name).Msg("skipping unreadable video node")
			continue
		}
		if !ok {
			continue
		}
		desc.Path = filepath.Join(devDir, name)
		out = append(out, desc)
	}
	return out, nil
}

func nodeNumber(name string) int {
	rest, ok := strings.CutPrefix(name, "video")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return -1
	}
	return n
}

func readNode(dir string) (uvc.DeviceDescriptor, bool, error) {
	if idx, err := readAttr(dir, "index"); err == nil && idx != "0" {
		return uvc.DeviceDescriptor{}, false, nil
	}

	iface, err := filepath.EvalSymlinks(filepath.Join(dir, "device"))
	if err != nil {
		return uvc.DeviceDescriptor{}, false, err
	}
	usbDir := filepath.Dir(iface)

	vendor, err := readHex(usbDir, "idVendor")
	if err != nil {
		// Not a USB device (e.g. platform ISP nodes).
		return uvc.DeviceDescriptor{}, false, nil
	}
	product, err := readHex(usbDir, "idProduct")
	if err != nil {
		return uvc.DeviceDescriptor{}, false, err
	}

	desc := uvc.DeviceDescriptor{VendorID: vendor, ProductID: product}
	desc.Bus, _ = readInt(usbDir, "busnum")
	desc.Address, _ = readInt(usbDir, "devnum")
	desc.Serial, _ = readAttr(usbDir, "serial")
	if name, err := readAttr(dir, "name"); err == nil {
		desc.Name = name
	} else {
		desc.Name, _ = readAttr(usbDir, "product")
	}
	return desc, true, nil
}

func readAttr(dir, name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readHex(dir, name string) (uint16, error) {
	s, err := readAttr(dir, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return uint16(v), nil
}

func readInt(dir, name string) (int, error) {
	s, err := readAttr(dir, name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

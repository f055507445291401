// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package v4l2

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/bigeye/internal/uvc"
)

type fakeNode struct {
	name  string
	index string
	iface string // relative to the devices dir
}

// buildSysfs lays out a class/video4linux tree with device symlinks into a
// devices/ hierarchy, the way the kernel exposes uvcvideo nodes.
func buildSysfs(t *testing.T, usb map[string]map[string]string, nodes []fakeNode) string {
	t.Helper()
	base := t.TempDir()
	devices := filepath.Join(base, "devices")
	for dir, attrs := range usb {
		p := filepath.Join(devices, dir)
		require.NoError(t, os.MkdirAll(p, 0o755))
		for k, v := range attrs {
			require.NoError(t, os.WriteFile(filepath.Join(p, k), []byte(v+"\n"), 0o644))
		}
	}
	class := filepath.Join(base, "class")
	for _, n := range nodes {
		dir := filepath.Join(class, n.name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "name"), []byte("Dual Fisheye: UVC Camera\n"), 0o644))
		if n.index != "" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "index"), []byte(n.index+"\n"), 0o644))
		}
		target := filepath.Join(devices, n.iface)
		require.NoError(t, os.MkdirAll(target, 0o755))
		require.NoError(t, os.Symlink(target, filepath.Join(dir, "device")))
	}
	return class
}

func TestEnumerateSysfs(t *testing.T) {
	root := buildSysfs(t,
		map[string]map[string]string{
			"usb1/1-1": {"idVendor": "2e1a", "idProduct": "0002", "busnum": "1", "devnum": "4", "serial": "BE0001"},
			"usb2/2-3": {"idVendor": "046d", "idProduct": "0825", "busnum": "2", "devnum": "9"},
		},
		[]fakeNode{
			{name: "video10", index: "0", iface: "usb2/2-3/2-3:1.0"},
			{name: "video0", index: "0", iface: "usb1/1-1/1-1:1.0"},
			{name: "video1", index: "1", iface: "usb1/1-1/1-1:1.0"},
			{name: "video2", iface: "platform/isp"},
		},
	)

	got, err := Enumerator{SysfsRoot: root, DevDir: "/dev"}.Enumerate(context.Background())
	require.NoError(t, err)

	want := []uvc.DeviceDescriptor{
		{VendorID: 0x2e1a, ProductID: 0x0002, Bus: 1, Address: 4, Path: "/dev/video0", Serial: "BE0001", Name: "Dual Fisheye: UVC Camera"},
		{VendorID: 0x046d, ProductID: 0x0825, Bus: 2, Address: 9, Path: "/dev/video10", Name: "Dual Fisheye: UVC Camera"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("enumeration mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateMissingRoot(t *testing.T) {
	got, err := Enumerator{SysfsRoot: filepath.Join(t.TempDir(), "absent")}.Enumerate(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestNodeNumber(t *testing.T) {
	require.Equal(t, 12, nodeNumber("video12"))
	require.Equal(t, -1, nodeNumber("v4l-subdev0"))
	require.Equal(t, -1, nodeNumber("videoX"))
}

// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

//go:build linux

package sysfsbus_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Seagate/lpss-lib/pkg/newbus"
	"github.com/Seagate/lpss-lib/pkg/newbus/sysfsbus"

	"github.com/go-logr/logr"
)

func writeFakePCIDevice(t *testing.T, sysRoot, id string, vals map[string]string, barSize int) {
	t.Helper()

	parent := "pci0000:00"
	devDir := filepath.Join(sysRoot, "devices", parent, id)
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", devDir, err)
	}

	for f, val := range vals {
		path := filepath.Join(devDir, f)
		if err := os.WriteFile(path, []byte(val+"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	if barSize > 0 {
		path := filepath.Join(devDir, "resource0")
		if err := os.WriteFile(path, make([]byte, barSize), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	busDevicesDir := filepath.Join(sysRoot, "bus", "pci", "devices")
	if err := os.MkdirAll(busDevicesDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", busDevicesDir, err)
	}
	linkPath := filepath.Join(busDevicesDir, id)
	target := filepath.Join("..", "..", "..", "devices", parent, id)
	_ = os.Remove(linkPath)
	if err := os.Symlink(target, linkPath); err != nil {
		t.Fatalf("symlink %s -> %s: %v", linkPath, target, err)
	}
}

func lpssVals(device, irq string) map[string]string {
	return map[string]string{
		"class":            "0x118000",
		"vendor":           "0x8086",
		"device":           device,
		"subsystem_vendor": "0x8086",
		"subsystem_device": "0x7270",
		"revision":         "0x10",
		"irq":              irq,
	}
}

func fakeTree(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	writeFakePCIDevice(t, tmpDir, "0000:00:15.1", lpssVals("0xa369", "17"), 0x1000)
	writeFakePCIDevice(t, tmpDir, "0000:00:15.0", lpssVals("0xa368", "16"), 0x1000)
	writeFakePCIDevice(t, tmpDir, "0000:00:1e.0", lpssVals("0xa328", "0"), 0x1000)
	writeFakePCIDevice(t, tmpDir, "0000:17:00.0", map[string]string{
		"class":            "0x030200",
		"vendor":           "0x10de",
		"device":           "0x2901",
		"subsystem_vendor": "0x10de",
		"subsystem_device": "0x0001",
		"revision":         "0x1",
	}, 0)
	return tmpDir
}

func TestEnumerateFiltersVendor(t *testing.T) {
	host, err := sysfsbus.NewHost(logr.Discard(), fakeTree(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	root := newbus.NewRoot("pci", host)

	devs, err := host.Enumerate(root, 0x8086)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(devs) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(devs))
	}
	want := []string{"0000:00:15.0", "0000:00:15.1", "0000:00:1e.0"}
	for i, d := range devs {
		p := d.PCI()
		if p.Addr != want[i] {
			t.Errorf("device %d: expected %s, got %s", i, want[i], p.Addr)
		}
		if p.Vendor != 0x8086 || p.Class != 0x118000 || p.Revision != 0x10 {
			t.Errorf("device %s: unexpected identity %+v", p.Addr, *p)
		}
	}
	if devs[0].PCI().Device != 0xa368 {
		t.Errorf("expected device 0xa368, got 0x%04x", devs[0].PCI().Device)
	}
	if len(root.Children()) != 3 {
		t.Errorf("expected 3 children under root, got %d", len(root.Children()))
	}
}

func TestMemoryResourceMapsBAR(t *testing.T) {
	sysRoot := fakeTree(t)
	host, err := sysfsbus.NewHost(logr.Discard(), sysRoot)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	root := newbus.NewRoot("pci", host)
	devs, err := host.Enumerate(root, 0x8086)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	dev := devs[0]

	r, err := host.AllocResourceAny(dev, newbus.SYS_RES_MEMORY, newbus.PCIR_BAR(0), newbus.RF_ACTIVE|newbus.RF_SHAREABLE)
	if err != nil {
		t.Fatalf("AllocResourceAny: %v", err)
	}
	if r.Size() != 0x1000 {
		t.Errorf("expected BAR size 0x1000, got 0x%x", r.Size())
	}
	if _, err := host.AllocResourceAny(dev, newbus.SYS_RES_MEMORY, newbus.PCIR_BAR(0), newbus.RF_ACTIVE); err == nil {
		t.Errorf("expected second allocation to fail")
	}

	priv, err := host.MapResource(dev, r, 0x200, 0x100)
	if err != nil {
		t.Fatalf("MapResource: %v", err)
	}
	priv.Write32(0xfc, 0x00000100)
	if got := priv.Read32(0xfc); got != 0x100 {
		t.Errorf("expected 0x100, got 0x%x", got)
	}
	if _, err := host.MapResource(dev, r, 0x800, 0x1000); err == nil {
		t.Errorf("expected out of range mapping to fail")
	}

	if err := host.UnmapResource(dev, r, priv); err != nil {
		t.Errorf("UnmapResource: %v", err)
	}
	if err := host.ReleaseResource(dev, newbus.SYS_RES_MEMORY, newbus.PCIR_BAR(0), r); err != nil {
		t.Errorf("ReleaseResource: %v", err)
	}
	if err := host.ReleaseResource(dev, newbus.SYS_RES_MEMORY, newbus.PCIR_BAR(0), r); !errors.Is(err, sysfsbus.ErrNotHeld) {
		t.Errorf("expected ErrNotHeld on double release, got %v", err)
	}

	// The write went through the shared mapping into the file.
	b, err := os.ReadFile(filepath.Join(sysRoot, "devices", "pci0000:00", "0000:00:15.0", "resource0"))
	if err != nil {
		t.Fatalf("read resource0: %v", err)
	}
	if b[0x2fd] != 0x01 {
		t.Errorf("expected caps byte 0x01 at 0x2fd, got 0x%02x", b[0x2fd])
	}
}

func TestInterruptResources(t *testing.T) {
	host, err := sysfsbus.NewHost(logr.Discard(), fakeTree(t))
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	root := newbus.NewRoot("pci", host)
	devs, err := host.Enumerate(root, 0x8086)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}

	if _, err := host.AllocMSI(devs[0], 1); !errors.Is(err, sysfsbus.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported from AllocMSI, got %v", err)
	}
	if _, err := host.AllocResourceAny(devs[0], newbus.SYS_RES_IRQ, 1, newbus.RF_ACTIVE); !errors.Is(err, sysfsbus.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported for rid 1, got %v", err)
	}

	irq, err := host.AllocResourceAny(devs[0], newbus.SYS_RES_IRQ, 0, newbus.RF_ACTIVE|newbus.RF_SHAREABLE)
	if err != nil {
		t.Fatalf("AllocResourceAny irq: %v", err)
	}
	if irq.Start() != 16 {
		t.Errorf("expected irq 16, got %d", irq.Start())
	}
	if _, err := host.SetupIntr(devs[0], irq, func() {}); !errors.Is(err, sysfsbus.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported from SetupIntr, got %v", err)
	}
	if err := host.ReleaseResource(devs[0], newbus.SYS_RES_IRQ, 0, irq); err != nil {
		t.Errorf("ReleaseResource irq: %v", err)
	}

	if _, err := host.AllocResourceAny(devs[2], newbus.SYS_RES_IRQ, 0, newbus.RF_ACTIVE); !errors.Is(err, sysfsbus.ErrNoIRQ) {
		t.Errorf("expected ErrNoIRQ, got %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"0000:00:15.0", "0000:00:15.0", true},
		{"00:15.1", "0000:00:15.1", true},
		{"0001:3a:1f.7", "0001:3a:1f.7", true},
		{"00:20.0", "", false},
		{"garbage", "", false},
	}
	for _, tt := range tests {
		a, err := sysfsbus.ParseAddress(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParseAddress(%q): unexpected error state %v", tt.in, err)
			continue
		}
		if tt.ok && a.String() != tt.want {
			t.Errorf("ParseAddress(%q) = %s, want %s", tt.in, a, tt.want)
		}
	}
}

// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

//go:build linux

package sysfsbus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Seagate/lpss-lib/pkg/newbus"

	"github.com/go-logr/logr"
	"github.com/prometheus/procfs/sysfs"
	"golang.org/x/sys/unix"
)

const pciDevicesPath = "bus/pci/devices"

type memResource struct {
	addr string
	rid  int
	mem  []byte
	m    *newbus.MemMapping
	maps int
}

func (r *memResource) Type() newbus.ResourceType { return newbus.SYS_RES_MEMORY }
func (r *memResource) RID() int                  { return r.rid }
func (r *memResource) Start() uint64             { return uint64(r.m.VirtAddr()) }
func (r *memResource) Size() uint64              { return uint64(len(r.mem)) }

type irqResource struct {
	line int
}

func (r *irqResource) Type() newbus.ResourceType { return newbus.SYS_RES_IRQ }
func (r *irqResource) RID() int                  { return 0 }
func (r *irqResource) Start() uint64             { return uint64(r.line) }
func (r *irqResource) Size() uint64              { return 1 }

type Host struct {
	log        logr.Logger
	fs         sysfs.FS
	mountPoint string

	mu  sync.Mutex
	mem map[*newbus.Device]*memResource
	irq map[*newbus.Device]*irqResource
}

// NewHost opens the sysfs tree mounted at mountPoint, normally /sys.
func NewHost(log logr.Logger, mountPoint string) (*Host, error) {
	fs, err := sysfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}
	return &Host{
		log:        log,
		fs:         fs,
		mountPoint: mountPoint,
		mem:        map[*newbus.Device]*memResource{},
		irq:        map[*newbus.Device]*irqResource{},
	}, nil
}

// Enumerate adds one unnamed child to root for every PCI function of the
// given vendor, in address order. A vendor of 0 matches every function.
func (h *Host) Enumerate(root *newbus.Device, vendor uint16) ([]*newbus.Device, error) {
	devices, err := h.fs.PciDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to read pci devices: %w", err)
	}

	var infos []newbus.PCIInfo
	for _, d := range devices {
		if vendor != 0 && d.Vendor != uint32(vendor) {
			h.log.V(3).Info("Skipping device, vendor not matching", "device", d.Name(), "expected vendor", vendor, "found vendor", d.Vendor)
			continue
		}
		addr := Address{
			Domain:   uint(d.Location.Segment),
			Bus:      uint(d.Location.Bus),
			Slot:     uint(d.Location.Device),
			Function: uint(d.Location.Function),
		}
		infos = append(infos, newbus.PCIInfo{
			Addr:     addr.String(),
			Vendor:   uint16(d.Vendor),
			Device:   uint16(d.Device),
			Class:    d.Class,
			Revision: uint8(d.Revision),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Addr < infos[j].Addr })

	out := make([]*newbus.Device, 0, len(infos))
	for i := range infos {
		dev := root.AddChild(0, "", -1)
		info := infos[i]
		dev.SetPCI(&info)
		h.log.V(1).Info("Found pci function", "device", info.Addr, "vendor", fmt.Sprintf("%04x", info.Vendor), "id", fmt.Sprintf("%04x", info.Device))
		out = append(out, dev)
	}
	return out, nil
}

func (h *Host) devicePath(dev *newbus.Device, file string) (string, error) {
	p := dev.PCI()
	if p == nil {
		return "", fmt.Errorf("%s: not a pci function", dev.NameUnit())
	}
	return filepath.Join(h.mountPoint, pciDevicesPath, p.Addr, file), nil
}

func (h *Host) AllocResourceAny(dev *newbus.Device, typ newbus.ResourceType, rid int, flags newbus.ResourceFlags) (newbus.Resource, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch typ {
	case newbus.SYS_RES_MEMORY:
		return h.allocMemory(dev, rid)
	case newbus.SYS_RES_IRQ:
		return h.allocIRQ(dev, rid)
	}
	return nil, fmt.Errorf("alloc %v: %w", typ, ErrNotSupported)
}

func (h *Host) allocMemory(dev *newbus.Device, rid int) (newbus.Resource, error) {
	if _, ok := h.mem[dev]; ok {
		return nil, fmt.Errorf("%s: memory resource already allocated", dev.NameUnit())
	}
	bar := (rid - newbus.PCIR_BAR(0)) / 4
	if rid < newbus.PCIR_BAR(0) || bar > 5 || (rid-newbus.PCIR_BAR(0))%4 != 0 {
		return nil, fmt.Errorf("alloc memory rid 0x%x: %w", rid, ErrNotSupported)
	}
	path, err := h.devicePath(dev, fmt.Sprintf("resource%d", bar))
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dev.PCI().Addr, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dev.PCI().Addr, err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%s: BAR%d is empty", dev.PCI().Addr, bar)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%s: mmap %s: %w", dev.PCI().Addr, filepath.Base(path), err)
	}
	r := &memResource{addr: dev.PCI().Addr, rid: rid, mem: mem, m: newbus.NewMemMapping(mem)}
	h.mem[dev] = r
	h.log.V(2).Info("Mapped BAR", "device", r.addr, "bar", bar, "size", len(mem))
	return r, nil
}

func (h *Host) allocIRQ(dev *newbus.Device, rid int) (newbus.Resource, error) {
	if rid != 0 {
		return nil, fmt.Errorf("alloc irq rid %d: %w", rid, ErrNotSupported)
	}
	if _, ok := h.irq[dev]; ok {
		return nil, fmt.Errorf("%s: irq resource already allocated", dev.NameUnit())
	}
	path, err := h.devicePath(dev, "irq")
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dev.PCI().Addr, err)
	}
	line, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("%s: parse irq: %w", dev.PCI().Addr, err)
	}
	if line == 0 {
		return nil, fmt.Errorf("%s: %w", dev.PCI().Addr, ErrNoIRQ)
	}
	r := &irqResource{line: line}
	h.irq[dev] = r
	return r, nil
}

func (h *Host) ReleaseResource(dev *newbus.Device, typ newbus.ResourceType, rid int, r newbus.Resource) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch typ {
	case newbus.SYS_RES_MEMORY:
		mr, ok := h.mem[dev]
		if !ok || newbus.Resource(mr) != r {
			return fmt.Errorf("release memory rid 0x%x: %w", rid, ErrNotHeld)
		}
		if mr.maps != 0 {
			h.log.Info("Releasing BAR with live mappings", "device", mr.addr, "mappings", mr.maps)
		}
		delete(h.mem, dev)
		if err := unix.Munmap(mr.mem); err != nil {
			return fmt.Errorf("%s: munmap: %w", mr.addr, err)
		}
		return nil
	case newbus.SYS_RES_IRQ:
		ir, ok := h.irq[dev]
		if !ok || newbus.Resource(ir) != r {
			return fmt.Errorf("release irq rid %d: %w", rid, ErrNotHeld)
		}
		delete(h.irq, dev)
		return nil
	}
	return fmt.Errorf("release %v: %w", typ, ErrNotSupported)
}

func (h *Host) MapResource(dev *newbus.Device, r newbus.Resource, offset, length uint64) (newbus.Mapping, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mr, ok := h.mem[dev]
	if !ok || newbus.Resource(mr) != r {
		return nil, fmt.Errorf("map: %w", ErrNotHeld)
	}
	m, err := mr.m.Slice(offset, length)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mr.addr, err)
	}
	mr.maps++
	return m, nil
}

func (h *Host) UnmapResource(dev *newbus.Device, r newbus.Resource, m newbus.Mapping) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	mr, ok := h.mem[dev]
	if !ok || newbus.Resource(mr) != r || mr.maps == 0 {
		return fmt.Errorf("unmap: %w", ErrNotHeld)
	}
	mr.maps--
	return nil
}

// AllocMSI always fails; message signalled interrupts are only available to
// kernel drivers, so callers fall back to the legacy line.
func (h *Host) AllocMSI(dev *newbus.Device, count int) (int, error) {
	return 0, fmt.Errorf("alloc msi: %w", ErrNotSupported)
}

func (h *Host) ReleaseMSI(dev *newbus.Device) error {
	return fmt.Errorf("release msi: %w", ErrNotSupported)
}

func (h *Host) SetupIntr(dev *newbus.Device, r newbus.Resource, handler newbus.IntrHandler) (newbus.IntrCookie, error) {
	return nil, fmt.Errorf("setup intr: %w", ErrNotSupported)
}

func (h *Host) TeardownIntr(dev *newbus.Device, r newbus.Resource, cookie newbus.IntrCookie) error {
	return fmt.Errorf("teardown intr: %w", ErrNotSupported)
}

// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// Package simbus is an in-memory newbus.Host. Each simulated PCI function has
// a RAM-backed BAR, optional MSI support and a legacy interrupt line. The host
// keeps an account of everything it hands out, logs register writes and can
// fail any allocation step on request.
package simbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Seagate/lpss-lib/pkg/newbus"

	"k8s.io/klog/v2"
)

var (
	ErrInjected      = errors.New("simbus: injected fault")
	ErrNotHeld       = errors.New("simbus: resource not held")
	ErrBusy          = errors.New("simbus: resource already allocated")
	ErrUnknownDevice = errors.New("simbus: device has no simulated function")
	ErrBadRID        = errors.New("simbus: no such rid")
)

// Fault selects an allocation step to fail.
type Fault int

const (
	FaultMemory Fault = iota + 1
	FaultMSI
	FaultIRQ
	FaultMap
	FaultIntr
)

func (f Fault) String() string {
	switch f {
	case FaultMemory:
		return "memory"
	case FaultMSI:
		return "msi"
	case FaultIRQ:
		return "irq"
	case FaultMap:
		return "map"
	case FaultIntr:
		return "intr"
	}
	return fmt.Sprintf("fault(%d)", int(f))
}

const DefaultBarSize = 0x1000

// Function configures one simulated PCI function.
type Function struct {
	Addr    string
	Vendor  uint16
	Device  uint16
	Class   uint32
	BarSize uint64
	NoMSI   bool
	IRQ     int
}

// Write is one logged 32-bit register write. Offset is relative to BAR 0.
type Write struct {
	Offset uint64
	Value  uint32
}

// Accounting counts what a device currently holds.
type Accounting struct {
	Memory   int
	IRQ      int
	MSI      int
	Mappings int
	Handlers int
}

func (a Accounting) Total() int {
	return a.Memory + a.IRQ + a.MSI + a.Mappings + a.Handlers
}

type memResource struct {
	rid  int
	size uint64
	mm   *newbus.MemMapping
}

func (r *memResource) Type() newbus.ResourceType { return newbus.SYS_RES_MEMORY }
func (r *memResource) RID() int                  { return r.rid }
func (r *memResource) Start() uint64             { return uint64(r.mm.VirtAddr()) }
func (r *memResource) Size() uint64              { return r.size }

type irqResource struct {
	rid  int
	line int
}

func (r *irqResource) Type() newbus.ResourceType { return newbus.SYS_RES_IRQ }
func (r *irqResource) RID() int                  { return r.rid }
func (r *irqResource) Start() uint64             { return uint64(r.line) }
func (r *irqResource) Size() uint64              { return 1 }

type mapping struct {
	*newbus.MemMapping
	base uint64
	h    *Host
	dev  *newbus.Device
}

func (m *mapping) Write32(offset uint64, value uint32) {
	m.h.logWrite(m.dev, m.base+offset, value)
	m.MemMapping.Write32(offset, value)
}

type handler struct {
	fn newbus.IntrHandler
}

type function struct {
	cfg      Function
	bar      *newbus.MemMapping
	mem      *memResource
	irq      *irqResource
	msi      bool
	mappings map[*mapping]bool
	handlers map[*handler]bool
	writes   []Write
}

type Host struct {
	mu        sync.Mutex
	funcs     map[*newbus.Device]*function
	faults    map[Fault]bool
	mapFailAt int
	mapCalls  int

	// intrMu serializes handler delivery against teardown.
	intrMu sync.Mutex
}

func New() *Host {
	return &Host{
		funcs:  map[*newbus.Device]*function{},
		faults: map[Fault]bool{},
	}
}

// AddFunction adds a simulated PCI function as an unnamed child of root.
func (h *Host) AddFunction(root *newbus.Device, f Function) *newbus.Device {
	if f.BarSize == 0 {
		f.BarSize = DefaultBarSize
	}
	dev := root.AddChild(0, "", -1)
	dev.SetPCI(&newbus.PCIInfo{Addr: f.Addr, Vendor: f.Vendor, Device: f.Device, Class: f.Class})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.funcs[dev] = &function{
		cfg:      f,
		bar:      newbus.NewMemMapping(make([]byte, f.BarSize)),
		mappings: map[*mapping]bool{},
		handlers: map[*handler]bool{},
	}
	return dev
}

// Inject makes every later step of kind f fail until ClearFaults.
func (h *Host) Inject(f Fault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults[f] = true
}

// FailMapAt fails the n-th MapResource call from now, counting from 1.
func (h *Host) FailMapAt(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mapFailAt = n
	h.mapCalls = 0
}

func (h *Host) ClearFaults() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = map[Fault]bool{}
	h.mapFailAt = 0
	h.mapCalls = 0
}

func (h *Host) lookup(dev *newbus.Device) (*function, error) {
	f, ok := h.funcs[dev]
	if !ok {
		return nil, fmt.Errorf("%s: %w", dev.NameUnit(), ErrUnknownDevice)
	}
	return f, nil
}

func (h *Host) AllocResourceAny(dev *newbus.Device, typ newbus.ResourceType, rid int, flags newbus.ResourceFlags) (newbus.Resource, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return nil, err
	}

	switch typ {
	case newbus.SYS_RES_MEMORY:
		if h.faults[FaultMemory] {
			return nil, fmt.Errorf("alloc memory rid 0x%x: %w", rid, ErrInjected)
		}
		if rid != newbus.PCIR_BAR(0) {
			return nil, fmt.Errorf("alloc memory rid 0x%x: %w", rid, ErrBadRID)
		}
		if f.mem != nil {
			return nil, fmt.Errorf("alloc memory rid 0x%x: %w", rid, ErrBusy)
		}
		f.mem = &memResource{rid: rid, size: f.cfg.BarSize, mm: f.bar}
		return f.mem, nil

	case newbus.SYS_RES_IRQ:
		if h.faults[FaultIRQ] {
			return nil, fmt.Errorf("alloc irq rid %d: %w", rid, ErrInjected)
		}
		if f.irq != nil {
			return nil, fmt.Errorf("alloc irq rid %d: %w", rid, ErrBusy)
		}
		switch {
		case rid == 0 && f.cfg.IRQ != 0:
			f.irq = &irqResource{rid: 0, line: f.cfg.IRQ}
		case rid == 1 && f.msi:
			f.irq = &irqResource{rid: 1, line: 256}
		default:
			return nil, fmt.Errorf("alloc irq rid %d: %w", rid, ErrBadRID)
		}
		return f.irq, nil
	}
	return nil, fmt.Errorf("alloc %v: %w", typ, ErrBadRID)
}

func (h *Host) ReleaseResource(dev *newbus.Device, typ newbus.ResourceType, rid int, r newbus.Resource) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return err
	}

	switch typ {
	case newbus.SYS_RES_MEMORY:
		if f.mem == nil || r != newbus.Resource(f.mem) || rid != f.mem.rid {
			return fmt.Errorf("release memory rid 0x%x: %w", rid, ErrNotHeld)
		}
		f.mem = nil
		return nil
	case newbus.SYS_RES_IRQ:
		if f.irq == nil || r != newbus.Resource(f.irq) || rid != f.irq.rid {
			return fmt.Errorf("release irq rid %d: %w", rid, ErrNotHeld)
		}
		f.irq = nil
		return nil
	}
	return fmt.Errorf("release %v: %w", typ, ErrBadRID)
}

func (h *Host) MapResource(dev *newbus.Device, r newbus.Resource, offset, length uint64) (newbus.Mapping, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return nil, err
	}
	h.mapCalls++
	if h.faults[FaultMap] || (h.mapFailAt != 0 && h.mapCalls == h.mapFailAt) {
		return nil, fmt.Errorf("map 0x%x+0x%x: %w", offset, length, ErrInjected)
	}
	if f.mem == nil || r != newbus.Resource(f.mem) {
		return nil, fmt.Errorf("map 0x%x+0x%x: %w", offset, length, ErrNotHeld)
	}
	view, err := f.bar.Slice(offset, length)
	if err != nil {
		return nil, err
	}
	m := &mapping{MemMapping: view, base: offset, h: h, dev: dev}
	f.mappings[m] = true
	return m, nil
}

func (h *Host) UnmapResource(dev *newbus.Device, r newbus.Resource, m newbus.Mapping) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return err
	}
	sm, ok := m.(*mapping)
	if !ok || !f.mappings[sm] {
		return fmt.Errorf("unmap: %w", ErrNotHeld)
	}
	delete(f.mappings, sm)
	return nil
}

func (h *Host) AllocMSI(dev *newbus.Device, count int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return 0, err
	}
	if h.faults[FaultMSI] {
		return 0, fmt.Errorf("alloc msi: %w", ErrInjected)
	}
	if f.cfg.NoMSI {
		return 0, fmt.Errorf("alloc msi: not supported by %s", dev.NameUnit())
	}
	if f.msi {
		return 0, fmt.Errorf("alloc msi: %w", ErrBusy)
	}
	f.msi = true
	return 1, nil
}

func (h *Host) ReleaseMSI(dev *newbus.Device) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return err
	}
	if !f.msi {
		return fmt.Errorf("release msi: %w", ErrNotHeld)
	}
	f.msi = false
	return nil
}

func (h *Host) SetupIntr(dev *newbus.Device, r newbus.Resource, fn newbus.IntrHandler) (newbus.IntrCookie, error) {
	h.intrMu.Lock()
	defer h.intrMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return nil, err
	}
	if h.faults[FaultIntr] {
		return nil, fmt.Errorf("setup intr: %w", ErrInjected)
	}
	if f.irq == nil || r != newbus.Resource(f.irq) {
		return nil, fmt.Errorf("setup intr: %w", ErrNotHeld)
	}
	hd := &handler{fn: fn}
	f.handlers[hd] = true
	return hd, nil
}

func (h *Host) TeardownIntr(dev *newbus.Device, r newbus.Resource, cookie newbus.IntrCookie) error {
	h.intrMu.Lock()
	defer h.intrMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := h.lookup(dev)
	if err != nil {
		return err
	}
	hd, ok := cookie.(*handler)
	if !ok || !f.handlers[hd] {
		return fmt.Errorf("teardown intr: %w", ErrNotHeld)
	}
	delete(f.handlers, hd)
	return nil
}

// Fire delivers one interrupt to every handler installed for dev and returns
// how many ran.
func (h *Host) Fire(dev *newbus.Device) int {
	h.intrMu.Lock()
	defer h.intrMu.Unlock()

	h.mu.Lock()
	f, err := h.lookup(dev)
	var hs []*handler
	if err == nil {
		for hd := range f.handlers {
			hs = append(hs, hd)
		}
	}
	h.mu.Unlock()

	for _, hd := range hs {
		hd.fn()
	}
	return len(hs)
}

// HeldBy reports what dev currently holds.
func (h *Host) HeldBy(dev *newbus.Device) Accounting {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.funcs[dev]
	if !ok {
		return Accounting{}
	}
	return f.account()
}

// Held is the number of resources, claims, mappings and handlers held by all
// devices.
func (h *Host) Held() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, f := range h.funcs {
		n += f.account().Total()
	}
	return n
}

func (f *function) account() Accounting {
	a := Accounting{Mappings: len(f.mappings), Handlers: len(f.handlers)}
	if f.mem != nil {
		a.Memory = 1
	}
	if f.irq != nil {
		a.IRQ = 1
	}
	if f.msi {
		a.MSI = 1
	}
	return a
}

// Poke32 sets a BAR register without logging it, standing in for hardware.
func (h *Host) Poke32(dev *newbus.Device, offset uint64, value uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.funcs[dev]; ok {
		f.bar.Write32(offset, value)
	}
}

func (h *Host) Peek32(dev *newbus.Device, offset uint64) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.funcs[dev]; ok {
		return f.bar.Read32(offset)
	}
	return 0
}

func (h *Host) logWrite(dev *newbus.Device, offset uint64, value uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.funcs[dev]; ok {
		f.writes = append(f.writes, Write{Offset: offset, Value: value})
	}
	klog.V(4).InfoS("simbus.write", "device", dev.NameUnit(), "offset", fmt.Sprintf("0x%03X", offset), "value", fmt.Sprintf("0x%08X", value))
}

// Writes returns the logged writes of dev whose offset lies in
// [from, from+length).
func (h *Host) Writes(dev *newbus.Device, from, length uint64) []Write {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.funcs[dev]
	if !ok {
		return nil
	}
	var out []Write
	for _, w := range f.writes {
		if w.Offset >= from && w.Offset < from+length {
			out = append(out, w)
		}
	}
	return out
}

func (h *Host) ClearWrites(dev *newbus.Device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.funcs[dev]; ok {
		f.writes = nil
	}
}

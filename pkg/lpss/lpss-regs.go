// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the register windows carved out of the LPSS BAR
package lpss

import (
	"fmt"

	"github.com/Seagate/lpss-lib/pkg/newbus"

	"k8s.io/klog/v2"
)

// BAR layout
const (
	LPSS_DEV_OFFSET     = 0x000
	LPSS_DEV_SIZE       = 0x200
	LPSS_PRIV_OFFSET    = 0x200
	LPSS_PRIV_SIZE      = 0x100
	LPSS_PRIV_REG_COUNT = LPSS_PRIV_SIZE / 4
	LPSS_IDMA64_OFFSET  = 0x800
	LPSS_IDMA64_SIZE    = 0x800
)

// Offsets within the private window
const (
	LPSS_PRIV_RESETS     = 0x04
	LPSS_PRIV_ACTIVELTR  = 0x10
	LPSS_PRIV_IDLELTR    = 0x14
	LPSS_PRIV_SSP_REG    = 0x20
	LPSS_PRIV_REMAP_ADDR = 0x40
	LPSS_PRIV_CAPS       = 0xfc
)

const (
	LPSS_PRIV_RESETS_FUNC         = 0x3
	LPSS_PRIV_RESETS_IDMA         = 1 << 2
	LPSS_PRIV_SSP_REG_DIS_DMA_FIN = 1 << 0
)

func windowName(offset uint64) string {
	switch offset {
	case LPSS_DEV_OFFSET:
		return "dev"
	case LPSS_PRIV_OFFSET:
		return "priv"
	case LPSS_IDMA64_OFFSET:
		return "idma64"
	}
	return fmt.Sprintf("bar+0x%x", offset)
}

// MapError reports a window that could not be mapped, or an access outside a
// mapped window.
type MapError struct {
	Window string
	Op     string
	Offset uint64
	Length uint64
	Err    error
}

func (e *MapError) Error() string {
	s := fmt.Sprintf("lpss: %s window: %s 0x%x+0x%x", e.Window, e.Op, e.Offset, e.Length)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *MapError) Unwrap() error { return e.Err }

func (e *MapError) Is(target error) bool { return target == ErrMapFailure }

// Window is a bounds checked view of one range of the BAR. Offsets passed to
// its accessors are relative to the start of the window.
type Window struct {
	name   string
	offset uint64
	size   uint64
	m      newbus.Mapping
}

// MapWindow maps length bytes of the memory resource r starting at offset.
func MapWindow(host newbus.Host, dev *newbus.Device, r newbus.Resource, offset, length uint64) (*Window, error) {
	name := windowName(offset)
	m, err := host.MapResource(dev, r, offset, length)
	if err != nil {
		return nil, &MapError{Window: name, Op: "map", Offset: offset, Length: length, Err: err}
	}
	if m.Size() < length {
		_ = host.UnmapResource(dev, r, m)
		return nil, &MapError{Window: name, Op: "map", Offset: offset, Length: length, Err: fmt.Errorf("short mapping of 0x%x bytes", m.Size())}
	}
	klog.V(DBG_LVL_DETAIL).InfoS("lpss.MapWindow", "device", dev.NameUnit(), "window", name, "offset", hex(offset), "size", hex(length))
	return &Window{name: name, offset: offset, size: length, m: m}, nil
}

func (w *Window) check(op string, off uint64) {
	if off%4 != 0 || off >= w.size || w.size-off < 4 {
		panic(&MapError{Window: w.name, Op: op, Offset: off, Length: 4, Err: fmt.Errorf("outside window of 0x%x bytes", w.size)})
	}
}

func (w *Window) Read32(off uint64) uint32 {
	w.check("read", off)
	return w.m.Read32(off)
}

func (w *Window) Write32(off uint64, v uint32) {
	w.check("write", off)
	klog.V(DBG_LVL_DEEP_DETAIL).InfoS("lpss.Window.Write32", "window", w.name, "offset", hex(off), "value", hex(v))
	w.m.Write32(off, v)
}

// Write64 writes the low word at off and then the high word at off+4. The
// pair is not atomic.
func (w *Window) Write64(off uint64, v uint64) {
	w.check("write", off+4)
	w.Write32(off, uint32(v))
	w.Write32(off+4, uint32(v>>32))
}

func (w *Window) Name() string      { return w.name }
func (w *Window) Offset() uint64    { return w.offset }
func (w *Window) Size() uint64      { return w.size }
func (w *Window) VirtAddr() uintptr { return w.m.VirtAddr() }

// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

package newbus

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

type ResourceType int

// Resource types, numbered like the BSD SYS_RES_* values.
const (
	SYS_RES_IRQ    ResourceType = 1
	SYS_RES_MEMORY ResourceType = 3
)

func (t ResourceType) String() string {
	switch t {
	case SYS_RES_IRQ:
		return "irq"
	case SYS_RES_MEMORY:
		return "memory"
	}
	return fmt.Sprintf("restype(%d)", int(t))
}

type ResourceFlags uint

const (
	RF_ACTIVE    ResourceFlags = 0x0002
	RF_SHAREABLE ResourceFlags = 0x0004
)

// PCIR_BAR returns the config space offset of BAR n, used as the memory rid.
func PCIR_BAR(n int) int { return 0x10 + 4*n }

// Resource is an allocated bus resource: a memory range or an interrupt line.
type Resource interface {
	Type() ResourceType
	RID() int
	Start() uint64
	Size() uint64
}

// Mapping is a mapped, register addressable view of part of a memory
// resource. Offsets are relative to the start of the mapping.
type Mapping interface {
	Read32(offset uint64) uint32
	Write32(offset uint64, value uint32)
	Size() uint64
	VirtAddr() uintptr
}

type IntrHandler func()

// IntrCookie identifies an installed interrupt handler.
type IntrCookie interface{}

// Host provides the resource primitives of the bus a device sits on.
type Host interface {
	AllocResourceAny(dev *Device, typ ResourceType, rid int, flags ResourceFlags) (Resource, error)
	ReleaseResource(dev *Device, typ ResourceType, rid int, r Resource) error
	MapResource(dev *Device, r Resource, offset, length uint64) (Mapping, error)
	UnmapResource(dev *Device, r Resource, m Mapping) error

	AllocMSI(dev *Device, count int) (int, error)
	ReleaseMSI(dev *Device) error

	SetupIntr(dev *Device, r Resource, handler IntrHandler) (IntrCookie, error)
	TeardownIntr(dev *Device, r Resource, cookie IntrCookie) error
}

// MemMapping is a Mapping over a byte slice, either an mmap of a BAR or
// plain memory standing in for one. 32-bit accesses are single loads and
// stores.
type MemMapping struct {
	mem []byte
}

func NewMemMapping(mem []byte) *MemMapping {
	return &MemMapping{mem: mem}
}

func (m *MemMapping) addr(offset uint64) *uint32 {
	_ = m.mem[offset+3]
	return (*uint32)(unsafe.Pointer(&m.mem[offset]))
}

func (m *MemMapping) Read32(offset uint64) uint32 {
	return atomic.LoadUint32(m.addr(offset))
}

func (m *MemMapping) Write32(offset uint64, value uint32) {
	atomic.StoreUint32(m.addr(offset), value)
}

func (m *MemMapping) Size() uint64 { return uint64(len(m.mem)) }

func (m *MemMapping) VirtAddr() uintptr {
	if len(m.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&m.mem[0]))
}

// Slice returns a view of length bytes starting at offset. The view shares
// memory with m.
func (m *MemMapping) Slice(offset, length uint64) (*MemMapping, error) {
	if offset > uint64(len(m.mem)) || length > uint64(len(m.mem))-offset {
		return nil, fmt.Errorf("range 0x%x+0x%x outside mapping of 0x%x bytes", offset, length, len(m.mem))
	}
	return &MemMapping{mem: m.mem[offset : offset+length : offset+length]}, nil
}

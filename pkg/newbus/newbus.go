// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// Package newbus models the host bus/device framework that a controller driver
// plugs into: a tree of devices, driver classes kept in an explicit Registry,
// and the resource primitives a Host provides to the devices below it.
package newbus

import (
	"errors"
	"fmt"
	"sort"
)

// Probe priorities, highest wins. Same scale as the BSD bus framework.
const (
	BUS_PROBE_SPECIFIC   = 0
	BUS_PROBE_VENDOR     = -10
	BUS_PROBE_DEFAULT    = -20
	BUS_PROBE_LOW        = -40
	BUS_PROBE_GENERIC    = -100
	BUS_PROBE_HOOVER     = -1000000
	BUS_PROBE_NOWILDCARD = -2000000000
)

var (
	ErrNoDriver       = errors.New("no driver matched device")
	ErrDuplicateClass = errors.New("driver class already registered")
	ErrNotChild       = errors.New("device is not a child of this bus")
	ErrBusy           = errors.New("device is attached")
)

// Driver is the per-device driver instance the framework calls into. A fresh
// instance is created for every probe; the winning instance stays bound to the
// device and carries its state.
type Driver interface {
	Probe(dev *Device) (int, error)
	Attach(dev *Device) error
	Detach(dev *Device) error
	Suspend(dev *Device) error
	Resume(dev *Device) error
	Shutdown(dev *Device) error
}

// DriverClass describes a driver: its name, the name of the bus it attaches
// under, a constructor, and an optional identify hook that may add children
// to a parent before its children are probed.
type DriverClass struct {
	Name     string
	Bus      string
	New      func() Driver
	Identify func(class *DriverClass, parent *Device)

	devices []*Device
}

// Devices returns the devices currently bound to the class.
func (c *DriverClass) Devices() []*Device {
	return append([]*Device(nil), c.devices...)
}

func (c *DriverClass) nextUnit() int {
	used := map[int]bool{}
	for _, d := range c.devices {
		used[d.unit] = true
	}
	unit := 0
	for used[unit] {
		unit++
	}
	return unit
}

func (c *DriverClass) remove(dev *Device) {
	for i, d := range c.devices {
		if d == dev {
			c.devices = append(c.devices[:i], c.devices[i+1:]...)
			return
		}
	}
}

// PCIInfo is the identity of a PCI function as seen by its bus.
type PCIInfo struct {
	Addr     string
	Vendor   uint16
	Device   uint16
	Class    uint32
	Revision uint8
}

// Device is one node of the device tree.
type Device struct {
	name  string
	unit  int
	order int
	desc  string

	parent   *Device
	children []*Device
	host     Host
	pci      *PCIInfo

	class    *DriverClass
	driver   Driver
	attached bool
	wildUnit bool
}

// NewRoot creates the root of a device tree, typically the "pci" bus, served
// by host.
func NewRoot(name string, host Host) *Device {
	return &Device{name: name, unit: 0, host: host}
}

// Name returns the bound driver class name, or the name the device was
// created with.
func (d *Device) Name() string {
	if d.class != nil {
		return d.class.Name
	}
	return d.name
}

func (d *Device) Unit() int { return d.unit }

func (d *Device) NameUnit() string {
	if d.unit < 0 {
		return d.Name() + "?"
	}
	return fmt.Sprintf("%s%d", d.Name(), d.unit)
}

func (d *Device) Parent() *Device  { return d.parent }
func (d *Device) Desc() string     { return d.desc }
func (d *Device) SetDesc(s string) { d.desc = s }
func (d *Device) Driver() Driver   { return d.driver }
func (d *Device) Attached() bool   { return d.attached }

// Host returns the resource provider for the device. Devices created below a
// root inherit the root's host.
func (d *Device) Host() Host {
	for n := d; n != nil; n = n.parent {
		if n.host != nil {
			return n.host
		}
	}
	return nil
}

func (d *Device) PCI() *PCIInfo     { return d.pci }
func (d *Device) SetPCI(p *PCIInfo) { d.pci = p }

func (d *Device) Children() []*Device {
	return append([]*Device(nil), d.children...)
}

// FindChild returns the child with the given name and unit, or nil. A unit of
// -1 matches any unit.
func (d *Device) FindChild(name string, unit int) *Device {
	for _, c := range d.children {
		if c.Name() != name {
			continue
		}
		if unit == -1 || c.unit == unit {
			return c
		}
	}
	return nil
}

// AddChild adds a child in order position. A unit of -1 lets the unit be
// chosen when a driver binds. It returns nil when a child with the same name
// and explicit unit already exists.
func (d *Device) AddChild(order int, name string, unit int) *Device {
	if name != "" && unit >= 0 && d.FindChild(name, unit) != nil {
		return nil
	}
	c := &Device{name: name, unit: unit, order: order, parent: d}
	i := sort.Search(len(d.children), func(i int) bool { return d.children[i].order > order })
	d.children = append(d.children, nil)
	copy(d.children[i+1:], d.children[i:])
	d.children[i] = c
	return c
}

// DeleteChild removes a detached child and its subtree.
func (d *Device) DeleteChild(child *Device) error {
	if child.attached {
		return fmt.Errorf("%s: %w", child.NameUnit(), ErrBusy)
	}
	for _, gc := range child.Children() {
		if err := child.DeleteChild(gc); err != nil {
			return err
		}
	}
	for i, c := range d.children {
		if c == child {
			d.children = append(d.children[:i], d.children[i+1:]...)
			child.parent = nil
			return nil
		}
	}
	return fmt.Errorf("%s: %w", child.NameUnit(), ErrNotChild)
}

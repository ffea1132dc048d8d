// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

package newbus

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// Registry holds the driver classes known to one process. It is built once at
// start up and passed to whatever performs enumeration and attach.
type Registry struct {
	classes map[string]*DriverClass
	order   []*DriverClass
}

func NewRegistry() *Registry {
	return &Registry{classes: map[string]*DriverClass{}}
}

func (r *Registry) Register(c *DriverClass) error {
	if _, ok := r.classes[c.Name]; ok {
		return fmt.Errorf("%s: %w", c.Name, ErrDuplicateClass)
	}
	r.classes[c.Name] = c
	r.order = append(r.order, c)
	return nil
}

// FindClass looks a driver class up by name.
func (r *Registry) FindClass(name string) (*DriverClass, bool) {
	c, ok := r.classes[name]
	return c, ok
}

func (r *Registry) classesOn(bus string) []*DriverClass {
	var out []*DriverClass
	for _, c := range r.order {
		if c.Bus == bus {
			out = append(out, c)
		}
	}
	return out
}

// ProbeAndAttach probes every class registered for the device's bus, binds
// the best match and attaches it. A device created with a name only matches
// the class of that name, and BUS_PROBE_NOWILDCARD only matches such devices.
func (r *Registry) ProbeAndAttach(dev *Device) error {
	if dev.attached {
		return nil
	}
	if dev.parent == nil {
		return fmt.Errorf("%s: root device cannot be probed", dev.NameUnit())
	}

	var (
		best    *DriverClass
		bestDrv Driver
		bestPri int
	)
	for _, c := range r.classesOn(dev.parent.Name()) {
		if dev.name != "" && dev.name != c.Name {
			continue
		}
		drv := c.New()
		pri, err := drv.Probe(dev)
		if err != nil {
			klog.V(4).InfoS("newbus.ProbeAndAttach probe failed", "device", dev.NameUnit(), "class", c.Name, "err", err)
			continue
		}
		if pri == BUS_PROBE_NOWILDCARD && dev.name == "" {
			continue
		}
		if best == nil || pri > bestPri {
			best, bestDrv, bestPri = c, drv, pri
		}
	}
	if best == nil {
		return fmt.Errorf("%s: %w", dev.NameUnit(), ErrNoDriver)
	}

	r.bind(dev, best, bestDrv)
	if err := bestDrv.Attach(dev); err != nil {
		r.unbind(dev)
		return fmt.Errorf("%s: attach: %w", dev.NameUnit(), err)
	}
	dev.attached = true
	klog.V(2).InfoS("newbus.ProbeAndAttach", "device", dev.NameUnit(), "desc", dev.desc)
	return nil
}

func (r *Registry) bind(dev *Device, c *DriverClass, drv Driver) {
	dev.class = c
	dev.driver = drv
	if dev.unit < 0 {
		dev.unit = c.nextUnit()
		dev.wildUnit = true
	}
	c.devices = append(c.devices, dev)
}

func (r *Registry) unbind(dev *Device) {
	if dev.class != nil {
		dev.class.remove(dev)
	}
	if dev.wildUnit {
		dev.unit = -1
		dev.wildUnit = false
	}
	dev.class = nil
	dev.driver = nil
	dev.attached = false
}

// AttachChildren runs the identify hook of every class registered for the
// parent's bus, then probes and attaches each child not yet attached. Children
// with no matching driver are left in place; attach failures are collected.
func (r *Registry) AttachChildren(parent *Device) error {
	for _, c := range r.classesOn(parent.Name()) {
		if c.Identify != nil {
			c.Identify(c, parent)
		}
	}

	var errs []error
	for _, child := range parent.Children() {
		if err := r.ProbeAndAttach(child); err != nil && !errors.Is(err, ErrNoDriver) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Detach detaches the driver bound to dev and unbinds it.
func (r *Registry) Detach(dev *Device) error {
	if !dev.attached {
		return nil
	}
	if err := dev.driver.Detach(dev); err != nil {
		return fmt.Errorf("%s: detach: %w", dev.NameUnit(), err)
	}
	r.unbind(dev)
	return nil
}

// DetachChildren detaches attached children in reverse order and stops at the
// first failure.
func (r *Registry) DetachChildren(parent *Device) error {
	children := parent.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if err := r.Detach(children[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Suspend(dev *Device) error {
	if !dev.attached {
		return nil
	}
	return dev.driver.Suspend(dev)
}

func (r *Registry) Resume(dev *Device) error {
	if !dev.attached {
		return nil
	}
	return dev.driver.Resume(dev)
}

func (r *Registry) Shutdown(dev *Device) error {
	if !dev.attached {
		return nil
	}
	return dev.driver.Shutdown(dev)
}

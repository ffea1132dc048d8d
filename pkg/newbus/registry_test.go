// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

package newbus_test

import (
	"errors"

	"github.com/Seagate/lpss-lib/pkg/newbus"
	"github.com/Seagate/lpss-lib/pkg/newbus/simbus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeDriver struct {
	priority  int
	probeErr  error
	attachErr error
	detachErr *error
	log       *[]string
	name      string
}

func (d *fakeDriver) record(op string, dev *newbus.Device) {
	if d.log != nil {
		*d.log = append(*d.log, d.name+"."+op+":"+dev.NameUnit())
	}
}

func (d *fakeDriver) Probe(dev *newbus.Device) (int, error) {
	return d.priority, d.probeErr
}

func (d *fakeDriver) Attach(dev *newbus.Device) error {
	d.record("attach", dev)
	return d.attachErr
}

func (d *fakeDriver) Detach(dev *newbus.Device) error {
	d.record("detach", dev)
	if d.detachErr != nil {
		return *d.detachErr
	}
	return nil
}

func (d *fakeDriver) Suspend(dev *newbus.Device) error  { d.record("suspend", dev); return nil }
func (d *fakeDriver) Resume(dev *newbus.Device) error   { d.record("resume", dev); return nil }
func (d *fakeDriver) Shutdown(dev *newbus.Device) error { return nil }

func class(name, bus string, proto fakeDriver) *newbus.DriverClass {
	return &newbus.DriverClass{
		Name: name,
		Bus:  bus,
		New: func() newbus.Driver {
			d := proto
			d.name = name
			return &d
		},
	}
}

var _ = Describe("Device tree", func() {
	var root *newbus.Device

	BeforeEach(func() {
		root = newbus.NewRoot("pci", nil)
	})

	It("should keep children in order position", func() {
		b := root.AddChild(5, "b", -1)
		a := root.AddChild(0, "a", -1)
		c := root.AddChild(5, "c", -1)
		Expect(root.Children()).To(Equal([]*newbus.Device{a, b, c}))
		Expect(a.Parent()).To(Equal(root))
	})

	It("should find children by name and unit", func() {
		child := root.AddChild(0, "ig4iic_lpss", -1)
		Expect(root.FindChild("ig4iic_lpss", -1)).To(Equal(child))
		Expect(root.FindChild("ig4iic_lpss", 0)).To(BeNil())
		Expect(root.FindChild("other", -1)).To(BeNil())
	})

	It("should refuse a duplicate explicit unit", func() {
		Expect(root.AddChild(0, "uart", 1)).NotTo(BeNil())
		Expect(root.AddChild(0, "uart", 1)).To(BeNil())
		Expect(root.AddChild(0, "uart", 2)).NotTo(BeNil())
	})

	It("should delete a detached subtree", func() {
		child := root.AddChild(0, "bus", -1)
		child.AddChild(0, "leaf", -1)
		Expect(root.DeleteChild(child)).To(Succeed())
		Expect(root.Children()).To(BeEmpty())
		Expect(child.Parent()).To(BeNil())

		Expect(errors.Is(root.DeleteChild(child), newbus.ErrNotChild)).To(BeTrue())
	})

	It("should inherit the host from the root", func() {
		Expect(root.AddChild(0, "", -1).Host()).To(BeNil())

		host := simbus.New()
		pci := newbus.NewRoot("pci", host)
		leaf := pci.AddChild(0, "", -1).AddChild(0, "", -1)
		Expect(leaf.Host()).To(BeIdenticalTo(host))
	})
})

var _ = Describe("Registry", func() {
	var (
		reg  *newbus.Registry
		root *newbus.Device
		log  []string
	)

	BeforeEach(func() {
		reg = newbus.NewRegistry()
		root = newbus.NewRoot("pci", nil)
		log = nil
	})

	It("should reject a duplicate class", func() {
		Expect(reg.Register(class("lpss", "pci", fakeDriver{}))).To(Succeed())
		err := reg.Register(class("lpss", "pci", fakeDriver{}))
		Expect(errors.Is(err, newbus.ErrDuplicateClass)).To(BeTrue())

		c, ok := reg.FindClass("lpss")
		Expect(ok).To(BeTrue())
		Expect(c.Bus).To(Equal("pci"))
	})

	It("should bind the highest priority driver and assign a unit", func() {
		Expect(reg.Register(class("generic", "pci", fakeDriver{priority: newbus.BUS_PROBE_GENERIC, log: &log}))).To(Succeed())
		Expect(reg.Register(class("lpss", "pci", fakeDriver{priority: newbus.BUS_PROBE_DEFAULT, log: &log}))).To(Succeed())
		Expect(reg.Register(class("declines", "pci", fakeDriver{probeErr: errors.New("no"), log: &log}))).To(Succeed())
		Expect(reg.Register(class("elsewhere", "isa", fakeDriver{priority: newbus.BUS_PROBE_SPECIFIC, log: &log}))).To(Succeed())

		dev0 := root.AddChild(0, "", -1)
		dev1 := root.AddChild(0, "", -1)
		Expect(reg.ProbeAndAttach(dev0)).To(Succeed())
		Expect(reg.ProbeAndAttach(dev1)).To(Succeed())

		Expect(dev0.NameUnit()).To(Equal("lpss0"))
		Expect(dev1.NameUnit()).To(Equal("lpss1"))
		Expect(dev0.Attached()).To(BeTrue())
		Expect(log).To(Equal([]string{"lpss.attach:lpss0", "lpss.attach:lpss1"}))

		c, _ := reg.FindClass("lpss")
		Expect(c.Devices()).To(ConsistOf(dev0, dev1))
	})

	It("should only bind a no-wildcard driver to a device of its name", func() {
		Expect(reg.Register(class("lpss", "pci", fakeDriver{priority: newbus.BUS_PROBE_DEFAULT}))).To(Succeed())
		Expect(reg.Register(class("ig4iic_lpss", "lpss", fakeDriver{priority: newbus.BUS_PROBE_NOWILDCARD}))).To(Succeed())

		parent := root.AddChild(0, "", -1)
		Expect(reg.ProbeAndAttach(parent)).To(Succeed())

		anon := parent.AddChild(0, "", -1)
		err := reg.ProbeAndAttach(anon)
		Expect(errors.Is(err, newbus.ErrNoDriver)).To(BeTrue())
		Expect(anon.Attached()).To(BeFalse())

		named := parent.AddChild(0, "ig4iic_lpss", -1)
		Expect(reg.ProbeAndAttach(named)).To(Succeed())
		Expect(named.NameUnit()).To(Equal("ig4iic_lpss0"))
	})

	It("should unbind and restore the wildcard unit when attach fails", func() {
		Expect(reg.Register(class("lpss", "pci", fakeDriver{attachErr: errors.New("boom")}))).To(Succeed())

		dev := root.AddChild(0, "", -1)
		Expect(reg.ProbeAndAttach(dev)).To(MatchError(ContainSubstring("boom")))
		Expect(dev.Attached()).To(BeFalse())
		Expect(dev.Driver()).To(BeNil())
		Expect(dev.Unit()).To(Equal(-1))
		Expect(dev.Name()).To(Equal(""))

		c, _ := reg.FindClass("lpss")
		Expect(c.Devices()).To(BeEmpty())
	})

	It("should run identify hooks before attaching children", func() {
		Expect(reg.Register(class("lpss", "pci", fakeDriver{}))).To(Succeed())
		child := class("ig4iic_lpss", "lpss", fakeDriver{priority: newbus.BUS_PROBE_NOWILDCARD, log: &log})
		calls := 0
		child.Identify = func(c *newbus.DriverClass, parent *newbus.Device) {
			calls++
			if parent.FindChild(c.Name, -1) == nil {
				parent.AddChild(0, c.Name, -1)
			}
		}
		Expect(reg.Register(child)).To(Succeed())

		parent := root.AddChild(0, "", -1)
		Expect(reg.ProbeAndAttach(parent)).To(Succeed())
		Expect(reg.AttachChildren(parent)).To(Succeed())
		Expect(reg.AttachChildren(parent)).To(Succeed())

		Expect(calls).To(Equal(2))
		Expect(parent.Children()).To(HaveLen(1))
		Expect(log).To(Equal([]string{"ig4iic_lpss.attach:ig4iic_lpss0"}))
	})

	It("should stop detaching children at the first failure", func() {
		detachErr := errors.New("busy")
		var failing error
		Expect(reg.Register(class("lpss", "pci", fakeDriver{}))).To(Succeed())
		Expect(reg.Register(class("a", "lpss", fakeDriver{priority: newbus.BUS_PROBE_NOWILDCARD, log: &log}))).To(Succeed())
		Expect(reg.Register(class("b", "lpss", fakeDriver{priority: newbus.BUS_PROBE_NOWILDCARD, log: &log, detachErr: &failing}))).To(Succeed())

		parent := root.AddChild(0, "", -1)
		Expect(reg.ProbeAndAttach(parent)).To(Succeed())
		a := parent.AddChild(0, "a", -1)
		b := parent.AddChild(1, "b", -1)
		Expect(reg.AttachChildren(parent)).To(Succeed())
		log = nil

		failing = detachErr
		err := reg.DetachChildren(parent)
		Expect(errors.Is(err, detachErr)).To(BeTrue())
		Expect(a.Attached()).To(BeTrue())
		Expect(b.Attached()).To(BeTrue())
		Expect(log).To(Equal([]string{"b.detach:b0"}))

		By("retrying once the child lets go")
		failing = nil
		log = nil
		Expect(reg.DetachChildren(parent)).To(Succeed())
		Expect(log).To(Equal([]string{"b.detach:b0", "a.detach:a0"}))
		Expect(a.Attached()).To(BeFalse())
		Expect(parent.DeleteChild(a)).To(Succeed())
	})

	It("should refuse to delete an attached child", func() {
		Expect(reg.Register(class("lpss", "pci", fakeDriver{}))).To(Succeed())
		dev := root.AddChild(0, "", -1)
		Expect(reg.ProbeAndAttach(dev)).To(Succeed())
		Expect(errors.Is(root.DeleteChild(dev), newbus.ErrBusy)).To(BeTrue())

		Expect(reg.Suspend(dev)).To(Succeed())
		Expect(reg.Resume(dev)).To(Succeed())
		Expect(reg.Detach(dev)).To(Succeed())
		Expect(root.DeleteChild(dev)).To(Succeed())
	})
})

// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the API functions of the lpss library
package lpss

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Seagate/lpss-lib/pkg/iicbus"
	"github.com/Seagate/lpss-lib/pkg/newbus"

	"github.com/jaypipes/pcidb"
	"k8s.io/klog/v2"
)

const (
	DBG_LVL_DEFAULT     = iota //0
	DBG_LVL_BASIC              //1
	DBG_LVL_INFO               //2
	DBG_LVL_DETAIL             //3
	DBG_LVL_DEEP_DETAIL        //4
)

const (
	DRIVER_NAME = "lpss"
	DRIVER_DESC = "Intel LPSS PCI Driver"
)

var (
	ErrNoMemoryResource    = errors.New("lpss: can't allocate memory resource")
	ErrNoInterruptResource = errors.New("lpss: can't allocate IRQ resource")
	ErrMapFailure          = errors.New("lpss: can't map register window")
	ErrUnsupportedType     = errors.New("lpss: no supported MFP device found")
	ErrChildAttachFailure  = errors.New("lpss: child attach failed")
	ErrChildDetachFailure  = errors.New("lpss: child detach failed")
	ErrNoMatch             = errors.New("lpss: not an LPSS device")
	ErrNoChild             = errors.New("lpss: no I2C child attached")
	ErrNotAttached         = errors.New("lpss: controller not attached")
)

// Controller is the driver instance bound to one LPSS PCI function.
type Controller struct {
	reg     *newbus.Registry
	dev     *newbus.Device
	profile *Profile
	res     *Resources
	caps    Capabilities
	ctx     Snapshot
}

// DriverClass returns the lpss driver class for the pci bus. Children are
// attached and detached through reg.
func DriverClass(reg *newbus.Registry) *newbus.DriverClass {
	return &newbus.DriverClass{
		Name: DRIVER_NAME,
		Bus:  "pci",
		New:  func() newbus.Driver { return &Controller{reg: reg} },
	}
}

// Register adds the lpss driver class to reg.
func Register(reg *newbus.Registry) error {
	return reg.Register(DriverClass(reg))
}

func (c *Controller) Probe(dev *newbus.Device) (int, error) {
	p := dev.PCI()
	if p == nil {
		return 0, ErrNoMatch
	}
	profile, ok := LookupProfile(p.Vendor, p.Device)
	if !ok {
		return 0, fmt.Errorf("%w: %04x:%04x", ErrNoMatch, p.Vendor, p.Device)
	}
	klog.V(DBG_LVL_DETAIL).InfoS("lpss.Probe", "addr", p.Addr, "profile", profile.String())
	c.profile = profile
	dev.SetDesc(DRIVER_DESC)
	return newbus.BUS_PROBE_DEFAULT, nil
}

func (c *Controller) Attach(dev *newbus.Device) error {
	c.dev = dev
	host := dev.Host()

	res, err := Acquire(host, dev)
	if err != nil {
		return err
	}
	c.res = res

	if err := res.MapWindows(host, dev); err != nil {
		return c.abort(err)
	}

	caps, err := Decode(res.Priv)
	klog.V(DBG_LVL_BASIC).InfoS("lpss.Attach", "device", dev.NameUnit(), "caps", fmt.Sprintf("0x%08x", caps.Raw))
	if err != nil {
		return c.abort(err)
	}
	c.caps = caps
	klog.V(DBG_LVL_BASIC).InfoS("lpss.Attach", "device", dev.NameUnit(), "type", caps.Type.String(), "idma", caps.HasDMA)

	if caps.HasDMA {
		if err := res.MapDMA(host, dev); err != nil {
			return c.abort(err)
		}
	}

	InitDev(res.Priv, caps)

	if caps.Type == LPSS_DEV_I2C {
		if _, err := EnsureChild(dev); err != nil {
			return c.abort(fmt.Errorf("%w: %w", ErrChildAttachFailure, err))
		}
	}
	if err := c.reg.AttachChildren(dev); err != nil {
		return c.abort(fmt.Errorf("%w: %w", ErrChildAttachFailure, err))
	}
	return nil
}

// abort undoes a partial attach.
func (c *Controller) abort(cause error) error {
	errs := []error{cause}
	if err := c.reg.DetachChildren(c.dev); err != nil {
		errs = append(errs, err)
	}
	for _, child := range c.dev.Children() {
		if err := c.dev.DeleteChild(child); err != nil {
			errs = append(errs, err)
		}
	}
	if err := Release(c.dev.Host(), c.dev, c.res); err != nil {
		errs = append(errs, err)
	}
	c.res = nil
	c.caps = Capabilities{}
	klog.ErrorS(cause, "lpss.Attach failed", "device", c.dev.NameUnit())
	return errors.Join(errs...)
}

// Detach detaches and deletes the children, then releases the resources. If
// a child refuses to detach nothing is released.
func (c *Controller) Detach(dev *newbus.Device) error {
	if err := c.reg.DetachChildren(dev); err != nil {
		return fmt.Errorf("%w: %w", ErrChildDetachFailure, err)
	}
	var errs []error
	for _, child := range dev.Children() {
		if err := dev.DeleteChild(child); err != nil {
			errs = append(errs, err)
		}
	}
	if err := Release(dev.Host(), dev, c.res); err != nil {
		errs = append(errs, err)
	}
	c.res = nil
	return errors.Join(errs...)
}

func (c *Controller) Shutdown(dev *newbus.Device) error {
	return nil
}

// Suspend saves the private registers and, unless the function is a UART,
// puts it into reset. A UART in reset breaks S3/S0ix with
// no_console_suspend.
func (c *Controller) Suspend(dev *newbus.Device) error {
	if c.res == nil || c.res.Priv == nil {
		return ErrNotAttached
	}
	c.ctx = Save(c.res.Priv)
	if c.caps.Type != LPSS_DEV_UART {
		AssertReset(c.res.Priv)
	}
	klog.V(DBG_LVL_INFO).InfoS("lpss.Suspend", "device", dev.NameUnit(), "type", c.caps.Type.String())
	return nil
}

func (c *Controller) Resume(dev *newbus.Device) error {
	if c.res == nil || c.res.Priv == nil {
		return ErrNotAttached
	}
	InitDev(c.res.Priv, c.caps)
	Restore(c.res.Priv, &c.ctx)
	klog.V(DBG_LVL_INFO).InfoS("lpss.Resume", "device", dev.NameUnit(), "type", c.caps.Type.String())
	return nil
}

// SetupIntr installs handler on the controller's interrupt. Only one handler
// can be installed at a time.
func (c *Controller) SetupIntr(handler newbus.IntrHandler) error {
	if c.res == nil || c.res.IRQ == nil {
		return ErrNotAttached
	}
	if c.res.Cookie != nil {
		return fmt.Errorf("%s: interrupt handler already installed", c.dev.NameUnit())
	}
	cookie, err := c.dev.Host().SetupIntr(c.dev, c.res.IRQ, handler)
	if err != nil {
		return fmt.Errorf("%s: setup intr: %w", c.dev.NameUnit(), err)
	}
	c.res.Cookie = cookie
	return nil
}

// TeardownIntr removes the handler installed by SetupIntr, if any.
func (c *Controller) TeardownIntr() error {
	if c.res == nil || c.res.Cookie == nil {
		return nil
	}
	err := c.dev.Host().TeardownIntr(c.dev, c.res.IRQ, c.res.Cookie)
	c.res.Cookie = nil
	return err
}

func (c *Controller) childBus() (iicbus.Bus, error) {
	if c.dev == nil {
		return nil, ErrNotAttached
	}
	child := Child(c.dev)
	if child == nil || !child.Attached() {
		return nil, ErrNoChild
	}
	bus, ok := child.Driver().(iicbus.Bus)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no bus methods", ErrNoChild, child.NameUnit())
	}
	return bus, nil
}

// Transfer forwards an I2C transfer to the attached child.
func (c *Controller) Transfer(msgs []iicbus.Msg) error {
	bus, err := c.childBus()
	if err != nil {
		return err
	}
	return bus.Transfer(msgs)
}

// Reset forwards a bus reset to the attached child.
func (c *Controller) Reset(speed iicbus.Speed, addr uint8) error {
	bus, err := c.childBus()
	if err != nil {
		return err
	}
	return bus.Reset(speed, addr)
}

func (c *Controller) Device() *newbus.Device  { return c.dev }
func (c *Controller) Profile() *Profile       { return c.profile }
func (c *Controller) Caps() Capabilities      { return c.caps }
func (c *Controller) Attached() bool          { return c.res != nil }
func (c *Controller) SavedContext() *Snapshot { return &c.ctx }

// FunctionalWindow is the register window of the I2C, UART or SPI block.
func (c *Controller) FunctionalWindow() *Window {
	if c.res == nil {
		return nil
	}
	return c.res.Dev
}

// PrivateWindow is the reset, LTR and capabilities register window.
func (c *Controller) PrivateWindow() *Window {
	if c.res == nil {
		return nil
	}
	return c.res.Priv
}

func (c *Controller) DMAWindow() *Window {
	if c.res == nil {
		return nil
	}
	return c.res.DMA
}

// Resources returns what the controller currently holds, nil when detached.
func (c *Controller) Resources() *Resources { return c.res }

// Report is a read only view of an LPSS function.
type Report struct {
	Caps     Capabilities
	Regs     LPSS_PRIV_REGS
	Snapshot Snapshot
}

// Inspect maps dev, reads its private block and releases everything again.
// No register is written.
func Inspect(host newbus.Host, dev *newbus.Device) (*Report, error) {
	res, err := Acquire(host, dev)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := Release(host, dev, res); err != nil {
			klog.ErrorS(err, "lpss.Inspect release", "device", dev.NameUnit())
		}
	}()

	if err := res.MapWindows(host, dev); err != nil {
		return nil, err
	}
	r := &Report{Snapshot: Save(res.Priv)}
	r.Caps, err = DecodeCaps(r.Snapshot[LPSS_PRIV_CAPS/4])
	if err != nil {
		klog.V(DBG_LVL_BASIC).InfoS("lpss.Inspect", "device", dev.NameUnit(), "err", err)
	}
	r.Regs, err = DecodePrivate(&r.Snapshot)
	if err != nil {
		return nil, err
	}
	return r, nil
}

var pciDB struct {
	once sync.Once
	db   *pcidb.PCIDB
}

func loadPCIDB() *pcidb.PCIDB {
	pciDB.once.Do(func() {
		db, err := pcidb.New()
		if err != nil {
			klog.V(DBG_LVL_INFO).InfoS("lpss.loadPCIDB pci.ids not available", "err", err)
			return
		}
		pciDB.db = db
	})
	return pciDB.db
}

// ProductName looks a PCI function up in the local pci.ids database. It
// returns "" when either the database or the entry is missing.
func ProductName(vendor, device uint16) string {
	db := loadPCIDB()
	if db == nil {
		return ""
	}
	if p, ok := db.Products[fmt.Sprintf("%04x%04x", vendor, device)]; ok {
		return p.Name
	}
	return ""
}

// VendorName is the pci.ids vendor name, or "" when unknown.
func VendorName(vendor uint16) string {
	db := loadPCIDB()
	if db == nil {
		return ""
	}
	if v, ok := db.Vendors[fmt.Sprintf("%04x", vendor)]; ok {
		return v.Name
	}
	return ""
}

// Wrapper function to shorten int to hex convertion call
func hex(a any) string {
	return fmt.Sprintf("0x%X", a)
}

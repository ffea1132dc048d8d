// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// Package ig4 is the I2C child driver of an LPSS controller. It binds to the
// ig4iic_lpss device under an I2C-typed lpss parent and hands the parent's
// functional window to an I2C protocol engine, which does the actual bus
// work.
package ig4

import (
	"errors"
	"fmt"

	"github.com/Seagate/lpss-lib/pkg/iicbus"
	"github.com/Seagate/lpss-lib/pkg/lpss"
	"github.com/Seagate/lpss-lib/pkg/newbus"

	"k8s.io/klog/v2"
)

var (
	ErrNoEngine      = errors.New("ig4: no I2C engine configured")
	ErrBadParent     = errors.New("ig4: parent is not an I2C LPSS controller")
	ErrEngineStopped = errors.New("ig4: engine not attached")
)

// EngineConfig is what the engine gets from the LPSS parent.
type EngineConfig struct {
	Regs       *lpss.Window
	ClockRate  uint64
	Properties []lpss.Property
	SetupIntr  func(handler newbus.IntrHandler) error
}

// Property returns the value of a named property.
func (c EngineConfig) Property(name string) (uint32, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// Engine is the I2C controller protocol implementation.
type Engine interface {
	Attach(cfg EngineConfig) error
	Detach() error
	Transfer(msgs []iicbus.Msg) error
	Reset(speed iicbus.Speed, addr uint8) error
}

// DriverClass returns the ig4iic_lpss class. newEngine creates one engine per
// attached child; when it is nil the driver declines every device.
func DriverClass(newEngine func() Engine) *newbus.DriverClass {
	return &newbus.DriverClass{
		Name:     lpss.I2C_CHILD_NAME,
		Bus:      lpss.DRIVER_NAME,
		New:      func() newbus.Driver { return &Driver{newEngine: newEngine} },
		Identify: identify,
	}
}

func Register(reg *newbus.Registry, newEngine func() Engine) error {
	return reg.Register(DriverClass(newEngine))
}

// identify adds the single child under an I2C controller.
func identify(class *newbus.DriverClass, parent *newbus.Device) {
	ctrl, ok := parent.Driver().(*lpss.Controller)
	if !ok || ctrl.Caps().Type != lpss.LPSS_DEV_I2C {
		return
	}
	if _, err := lpss.EnsureChild(parent); err != nil {
		klog.ErrorS(err, "ig4.identify", "parent", parent.NameUnit())
	}
}

type Driver struct {
	newEngine func() Engine
	engine    Engine
	parent    *lpss.Controller
}

// Probe only accepts a device created under this driver's name.
func (d *Driver) Probe(dev *newbus.Device) (int, error) {
	if d.newEngine == nil {
		return 0, ErrNoEngine
	}
	return newbus.BUS_PROBE_NOWILDCARD, nil
}

func (d *Driver) Attach(dev *newbus.Device) error {
	parent := dev.Parent()
	if parent == nil {
		return ErrBadParent
	}
	ctrl, ok := parent.Driver().(*lpss.Controller)
	if !ok || ctrl.Caps().Type != lpss.LPSS_DEV_I2C || ctrl.FunctionalWindow() == nil {
		return fmt.Errorf("%w: %s", ErrBadParent, parent.NameUnit())
	}

	cfg := EngineConfig{
		Regs:      ctrl.FunctionalWindow(),
		SetupIntr: ctrl.SetupIntr,
	}
	if p := ctrl.Profile(); p != nil {
		cfg.ClockRate = p.ClockRate()
		cfg.Properties = append([]lpss.Property(nil), p.Info.Properties...)
	}

	engine := d.newEngine()
	if err := engine.Attach(cfg); err != nil {
		// The engine may have installed its handler before failing.
		if terr := ctrl.TeardownIntr(); terr != nil {
			klog.ErrorS(terr, "ig4.Attach teardown intr", "device", dev.NameUnit())
		}
		return fmt.Errorf("%s: engine attach: %w", dev.NameUnit(), err)
	}
	d.engine = engine
	d.parent = ctrl
	dev.SetDesc("Intel LPSS I2C Controller")
	klog.V(lpss.DBG_LVL_INFO).InfoS("ig4.Attach", "device", dev.NameUnit(), "parent", parent.NameUnit(), "clock", cfg.ClockRate)
	return nil
}

// Detach stops the engine. If the engine refuses, the child stays attached.
func (d *Driver) Detach(dev *newbus.Device) error {
	if d.engine == nil {
		return nil
	}
	if err := d.engine.Detach(); err != nil {
		return fmt.Errorf("%s: engine detach: %w", dev.NameUnit(), err)
	}
	d.engine = nil
	err := d.parent.TeardownIntr()
	d.parent = nil
	return err
}

func (d *Driver) Suspend(dev *newbus.Device) error  { return nil }
func (d *Driver) Resume(dev *newbus.Device) error   { return nil }
func (d *Driver) Shutdown(dev *newbus.Device) error { return nil }

func (d *Driver) Transfer(msgs []iicbus.Msg) error {
	if d.engine == nil {
		return ErrEngineStopped
	}
	return d.engine.Transfer(msgs)
}

func (d *Driver) Reset(speed iicbus.Speed, addr uint8) error {
	if d.engine == nil {
		return ErrEngineStopped
	}
	return d.engine.Reset(speed, addr)
}

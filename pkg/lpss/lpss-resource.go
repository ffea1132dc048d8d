// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the acquisition and release of the controller's bus
// resources
package lpss

import (
	"errors"
	"fmt"

	"github.com/Seagate/lpss-lib/pkg/newbus"

	"k8s.io/klog/v2"
)

// Resources is everything a controller holds from its host. A nil field has
// not been acquired, or has been released.
type Resources struct {
	MemRID int
	Mem    newbus.Resource

	MSI bool

	IRQRID int
	IRQ    newbus.Resource
	Cookie newbus.IntrCookie

	Dev  *Window
	Priv *Window
	DMA  *Window
}

// Acquire allocates the BAR and an interrupt line, preferring MSI. On failure
// nothing stays allocated.
func Acquire(host newbus.Host, dev *newbus.Device) (*Resources, error) {
	res := &Resources{MemRID: newbus.PCIR_BAR(0)}

	mem, err := host.AllocResourceAny(dev, newbus.SYS_RES_MEMORY, res.MemRID, newbus.RF_ACTIVE|newbus.RF_SHAREABLE)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMemoryResource, err)
	}
	res.Mem = mem

	if _, err := host.AllocMSI(dev, 1); err == nil {
		klog.V(DBG_LVL_BASIC).InfoS("lpss.Acquire using MSI", "device", dev.NameUnit())
		res.MSI = true
		res.IRQRID = 1
	} else {
		klog.V(DBG_LVL_INFO).InfoS("lpss.Acquire MSI unavailable, using legacy interrupt", "device", dev.NameUnit(), "err", err)
		res.IRQRID = 0
	}

	irq, err := host.AllocResourceAny(dev, newbus.SYS_RES_IRQ, res.IRQRID, newbus.RF_ACTIVE|newbus.RF_SHAREABLE)
	if err != nil {
		err = fmt.Errorf("%w: rid %d: %w", ErrNoInterruptResource, res.IRQRID, err)
		return nil, errors.Join(err, Release(host, dev, res))
	}
	res.IRQ = irq
	klog.V(DBG_LVL_BASIC).InfoS("lpss.Acquire", "device", dev.NameUnit(), "irq", irq.Start(), "rid", res.IRQRID)
	return res, nil
}

// MapWindows maps the functional and private windows.
func (res *Resources) MapWindows(host newbus.Host, dev *newbus.Device) error {
	w, err := MapWindow(host, dev, res.Mem, LPSS_DEV_OFFSET, LPSS_DEV_SIZE)
	if err != nil {
		return err
	}
	res.Dev = w

	w, err = MapWindow(host, dev, res.Mem, LPSS_PRIV_OFFSET, LPSS_PRIV_SIZE)
	if err != nil {
		return err
	}
	res.Priv = w
	return nil
}

// MapDMA maps the iDMA window. Only call it for functions with an iDMA engine.
func (res *Resources) MapDMA(host newbus.Host, dev *newbus.Device) error {
	w, err := MapWindow(host, dev, res.Mem, LPSS_IDMA64_OFFSET, LPSS_IDMA64_SIZE)
	if err != nil {
		return err
	}
	res.DMA = w
	return nil
}

// Release gives back everything in res, interrupt first and memory last.
// Every step runs even if an earlier one failed; the failures are joined.
func Release(host newbus.Host, dev *newbus.Device, res *Resources) error {
	if res == nil {
		return nil
	}
	var errs []error

	if res.Cookie != nil {
		if err := host.TeardownIntr(dev, res.IRQ, res.Cookie); err != nil {
			errs = append(errs, fmt.Errorf("teardown intr: %w", err))
		}
		res.Cookie = nil
	}
	if res.IRQ != nil {
		if err := host.ReleaseResource(dev, newbus.SYS_RES_IRQ, res.IRQRID, res.IRQ); err != nil {
			errs = append(errs, fmt.Errorf("release irq: %w", err))
		}
		res.IRQ = nil
	}
	if res.MSI {
		if err := host.ReleaseMSI(dev); err != nil {
			errs = append(errs, fmt.Errorf("release msi: %w", err))
		}
		res.MSI = false
	}

	for _, w := range []**Window{&res.DMA, &res.Priv, &res.Dev} {
		if *w == nil {
			continue
		}
		if err := host.UnmapResource(dev, res.Mem, (*w).m); err != nil {
			errs = append(errs, fmt.Errorf("unmap %s: %w", (*w).name, err))
		}
		*w = nil
	}

	if res.Mem != nil {
		if err := host.ReleaseResource(dev, newbus.SYS_RES_MEMORY, res.MemRID, res.Mem); err != nil {
			errs = append(errs, fmt.Errorf("release memory: %w", err))
		}
		res.Mem = nil
	}
	klog.V(DBG_LVL_DETAIL).InfoS("lpss.Release", "device", dev.NameUnit(), "errors", len(errs))
	return errors.Join(errs...)
}

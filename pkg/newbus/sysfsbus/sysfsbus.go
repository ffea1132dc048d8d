// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// Package sysfsbus is a newbus.Host for PCI functions exposed by Linux sysfs.
// BARs are mapped through the resourceN files and the legacy interrupt line
// is read from the irq file. Interrupt delivery and MSI need a kernel driver
// and are reported as unsupported.
package sysfsbus

import (
	"errors"
	"fmt"
)

var (
	ErrNotSupported = errors.New("sysfsbus: not supported")
	ErrNotHeld      = errors.New("sysfsbus: resource not held")
	ErrNoIRQ        = errors.New("sysfsbus: no legacy interrupt routed")
)

// Address is a PCI function address in sysfs form, DDDD:BB:DD.F.
type Address struct {
	Domain   uint
	Bus      uint
	Slot     uint
	Function uint
}

func (a Address) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%1x", a.Domain, a.Bus, a.Slot, a.Function)
}

// ParseAddress accepts DDDD:BB:DD.F, or BB:DD.F in domain 0.
func ParseAddress(s string) (Address, error) {
	var a Address
	if n, err := fmt.Sscanf(s, "%x:%x:%x.%x", &a.Domain, &a.Bus, &a.Slot, &a.Function); err == nil && n == 4 {
		return a, a.validate(s)
	}
	a = Address{}
	if n, err := fmt.Sscanf(s, "%x:%x.%x", &a.Bus, &a.Slot, &a.Function); err == nil && n == 3 {
		return a, a.validate(s)
	}
	return Address{}, fmt.Errorf("address %q: expect [DDDD:]BB:DD.F", s)
}

func (a Address) validate(s string) error {
	if a.Domain > 0xffff || a.Bus > 0xff || a.Slot > 0x1f || a.Function > 0x7 {
		return fmt.Errorf("address %q out of range", s)
	}
	return nil
}

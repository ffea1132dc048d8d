// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

//go:build !linux

package sysfsbus

import (
	"fmt"

	"github.com/Seagate/lpss-lib/pkg/newbus"

	"github.com/go-logr/logr"
)

type Host struct {
	log logr.Logger
}

func NewHost(log logr.Logger, mountPoint string) (*Host, error) {
	log.V(1).Info("NOT SUPPORTED OS")
	return nil, fmt.Errorf("sysfs host: %w", ErrNotSupported)
}

func (h *Host) Enumerate(root *newbus.Device, vendor uint16) ([]*newbus.Device, error) {
	return nil, ErrNotSupported
}

func (h *Host) AllocResourceAny(dev *newbus.Device, typ newbus.ResourceType, rid int, flags newbus.ResourceFlags) (newbus.Resource, error) {
	return nil, ErrNotSupported
}

func (h *Host) ReleaseResource(dev *newbus.Device, typ newbus.ResourceType, rid int, r newbus.Resource) error {
	return ErrNotSupported
}

func (h *Host) MapResource(dev *newbus.Device, r newbus.Resource, offset, length uint64) (newbus.Mapping, error) {
	return nil, ErrNotSupported
}

func (h *Host) UnmapResource(dev *newbus.Device, r newbus.Resource, m newbus.Mapping) error {
	return ErrNotSupported
}

func (h *Host) AllocMSI(dev *newbus.Device, count int) (int, error) { return 0, ErrNotSupported }
func (h *Host) ReleaseMSI(dev *newbus.Device) error                 { return ErrNotSupported }

func (h *Host) SetupIntr(dev *newbus.Device, r newbus.Resource, handler newbus.IntrHandler) (newbus.IntrCookie, error) {
	return nil, ErrNotSupported
}

func (h *Host) TeardownIntr(dev *newbus.Device, r newbus.Resource, cookie newbus.IntrCookie) error {
	return ErrNotSupported
}

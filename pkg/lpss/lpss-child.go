// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the single I2C child of an LPSS controller
package lpss

import (
	"fmt"

	"github.com/Seagate/lpss-lib/pkg/newbus"

	"k8s.io/klog/v2"
)

// I2C_CHILD_NAME is the driver class name of the I2C child.
const I2C_CHILD_NAME = "ig4iic_lpss"

// EnsureChild returns the I2C child of parent, adding it if there is none.
func EnsureChild(parent *newbus.Device) (*newbus.Device, error) {
	if child := parent.FindChild(I2C_CHILD_NAME, -1); child != nil {
		klog.V(DBG_LVL_DETAIL).InfoS("lpss.EnsureChild present", "parent", parent.NameUnit(), "child", child.NameUnit())
		return child, nil
	}
	child := parent.AddChild(0, I2C_CHILD_NAME, -1)
	if child == nil {
		return nil, fmt.Errorf("%s: add %s child failed", parent.NameUnit(), I2C_CHILD_NAME)
	}
	klog.V(DBG_LVL_INFO).InfoS("lpss.EnsureChild added", "parent", parent.NameUnit())
	return child, nil
}

// Child returns the I2C child of parent, or nil.
func Child(parent *newbus.Device) *newbus.Device {
	return parent.FindChild(I2C_CHILD_NAME, -1)
}

// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the decoding of the LPSS capabilities register
package lpss

import (
	"fmt"
)

// DevType is the functional type field of the capabilities register.
type DevType uint32

const (
	LPSS_DEV_I2C DevType = iota
	LPSS_DEV_UART
	LPSS_DEV_SPI
)

func (t DevType) String() string {
	switch t {
	case LPSS_DEV_I2C:
		return "I2C"
	case LPSS_DEV_UART:
		return "UART"
	case LPSS_DEV_SPI:
		return "SPI"
	}
	return "Unknown"
}

func (t DevType) Supported() bool { return t <= LPSS_DEV_SPI }

type Capabilities struct {
	Raw    uint32
	Type   DevType
	HasDMA bool
}

// DecodeCaps decodes a raw capabilities value. For a type outside I2C, UART
// and SPI it still fills in the fields but returns ErrUnsupportedType.
func DecodeCaps(raw uint32) (Capabilities, error) {
	c := Capabilities{
		Raw:    raw,
		Type:   DevType(LPSS_PRIV_CAPS_TYPE.read(raw)),
		HasDMA: LPSS_PRIV_CAPS_NO_IDMA.read(raw) == 0,
	}
	if !c.Type.Supported() {
		return c, fmt.Errorf("%w: type 0x%x in caps 0x%08x", ErrUnsupportedType, uint32(c.Type), raw)
	}
	return c, nil
}

// Decode reads the capabilities register through the private window.
func Decode(priv *Window) (Capabilities, error) {
	return DecodeCaps(priv.Read32(LPSS_PRIV_CAPS))
}

// SPIQuirk reports whether multiblock DMA has to be re-enabled after reset.
func (c Capabilities) SPIQuirk() bool {
	return c.Type == LPSS_DEV_SPI && c.HasDMA
}

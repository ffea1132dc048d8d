// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// Package iicbus defines the operations an I2C controller offers to the bus
// above it.
package iicbus

import "fmt"

type Speed int

const (
	IIC_UNKNOWN Speed = iota
	IIC_SLOW
	IIC_FAST
	IIC_FASTEST
)

func (s Speed) String() string {
	switch s {
	case IIC_UNKNOWN:
		return "unknown"
	case IIC_SLOW:
		return "slow"
	case IIC_FAST:
		return "fast"
	case IIC_FASTEST:
		return "fastest"
	}
	return fmt.Sprintf("speed(%d)", int(s))
}

// Message flags
const (
	IIC_M_WR      uint16 = 0
	IIC_M_RD      uint16 = 0x0001
	IIC_M_NOSTOP  uint16 = 0x0002
	IIC_M_NOSTART uint16 = 0x0004
)

// Msg is one segment of a combined transfer. Slave is the 8-bit address with
// the read bit clear.
type Msg struct {
	Slave uint16
	Flags uint16
	Buf   []byte
}

func (m Msg) IsRead() bool { return m.Flags&IIC_M_RD != 0 }

// Bus is implemented by I2C controller drivers.
type Bus interface {
	Transfer(msgs []Msg) error
	Reset(speed Speed, addr uint8) error
}

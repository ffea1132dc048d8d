// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the LPSS private register structures
package lpss

type u32field struct {
	offset   int
	bitwidth int
}

func (u *u32field) mask() uint32 {
	return (1<<u.bitwidth - 1) << u.offset
}

func (u *u32field) read(reg uint32) uint32 {
	return (reg >> u.offset) & (1<<u.bitwidth - 1)
}

func (u *u32field) write(reg *uint32, val uint32) {
	*reg = (*reg &^ u.mask()) | ((val << u.offset) & u.mask())
}

var (
	LPSS_PRIV_CAPS_TYPE    = u32field{offset: 4, bitwidth: 4}
	LPSS_PRIV_CAPS_NO_IDMA = u32field{offset: 8, bitwidth: 1}

	LPSS_PRIV_LTR_VALUE = u32field{offset: 0, bitwidth: 10}
	LPSS_PRIV_LTR_SCALE = u32field{offset: 10, bitwidth: 2}
	LPSS_PRIV_LTR_REQ   = u32field{offset: 15, bitwidth: 1}
)

// LTR scale encodings
const (
	LPSS_PRIV_LTR_SCALE_1US  = 0x2
	LPSS_PRIV_LTR_SCALE_32US = 0x3
)

type PRIV_RESETS struct {
	Func bitfield_2b
	IDMA bitfield_1b
	_    bitfield_29b
}

type PRIV_LTR struct {
	Value bitfield_10b
	Scale bitfield_2b
	_     bitfield_3b
	Req   bitfield_1b
	_     bitfield_16b
}

type PRIV_SSP_REG struct {
	Dis_DMA_Fin bitfield_1b
	_           bitfield_31b
}

type PRIV_REMAP_ADDR struct {
	Lo bitfield_32b
	Hi bitfield_32b
}

type PRIV_CAPS struct {
	_       bitfield_4b
	Type    bitfield_4b
	No_IDMA bitfield_1b
	_       bitfield_23b
}

// LPSS_PRIV_REGS is the decoded view of the named private registers.
type LPSS_PRIV_REGS struct {
	Resets     PRIV_RESETS
	Active_LTR PRIV_LTR
	Idle_LTR   PRIV_LTR
	SSP        PRIV_SSP_REG
	Remap_Addr PRIV_REMAP_ADDR
	Caps       PRIV_CAPS
}

func snapReg(s *Snapshot, offset int) []uint32 {
	return s[offset/4 : offset/4+1]
}

// DecodePrivate decodes the named registers out of a private block snapshot.
func DecodePrivate(s *Snapshot) (LPSS_PRIV_REGS, error) {
	var out LPSS_PRIV_REGS
	steps := []struct {
		regs []uint32
		dst  any
	}{
		{snapReg(s, LPSS_PRIV_RESETS), &out.Resets},
		{snapReg(s, LPSS_PRIV_ACTIVELTR), &out.Active_LTR},
		{snapReg(s, LPSS_PRIV_IDLELTR), &out.Idle_LTR},
		{snapReg(s, LPSS_PRIV_SSP_REG), &out.SSP},
		{s[LPSS_PRIV_REMAP_ADDR/4 : LPSS_PRIV_REMAP_ADDR/4+2], &out.Remap_Addr},
		{snapReg(s, LPSS_PRIV_CAPS), &out.Caps},
	}
	for _, st := range steps {
		if err := BitFieldRead32(st.regs, st.dst); err != nil {
			return out, err
		}
	}
	return out, nil
}

// LTRNanoseconds converts an LTR register value to nanoseconds. Scales other
// than 1us and 32us are reported as 0.
func LTRNanoseconds(reg uint32) uint64 {
	v := uint64(LPSS_PRIV_LTR_VALUE.read(reg))
	switch LPSS_PRIV_LTR_SCALE.read(reg) {
	case LPSS_PRIV_LTR_SCALE_1US:
		return v * 1000
	case LPSS_PRIV_LTR_SCALE_32US:
		return v * 32000
	}
	return 0
}

// EncodeLTR builds an LTR register value requesting value at the given scale.
func EncodeLTR(value, scale uint32) uint32 {
	var r uint32
	LPSS_PRIV_LTR_VALUE.write(&r, value)
	LPSS_PRIV_LTR_SCALE.write(&r, scale)
	LPSS_PRIV_LTR_REQ.write(&r, 1)
	return r
}

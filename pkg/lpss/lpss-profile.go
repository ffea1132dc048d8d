// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the table of known LPSS PCI functions
package lpss

import "fmt"

const PCI_VENDOR_INTEL = 0x8086

// Property is a named configuration value handed to the functional driver.
// Boolean properties carry 0.
type Property struct {
	Name  string
	Value uint32
}

type PlatformInfo struct {
	ClockRate  uint64
	ClockConID string
	Properties []Property
}

var (
	spt_i2c_properties = []Property{
		{"i2c-sda-hold-time-ns", 230},
	}
	uart_properties = []Property{
		{"reg-io-width", 4},
		{"reg-shift", 2},
		{"snps,uart-16550-compatible", 0},
	}
	bxt_i2c_properties = []Property{
		{"i2c-sda-hold-time-ns", 42},
		{"i2c-sda-falling-time-ns", 171},
		{"i2c-scl-falling-time-ns", 208},
	}
	apl_i2c_properties = []Property{
		{"i2c-sda-hold-time-ns", 207},
		{"i2c-sda-falling-time-ns", 171},
		{"i2c-scl-falling-time-ns", 208},
	}

	spt_info      = PlatformInfo{ClockRate: 120000000}
	spt_i2c_info  = PlatformInfo{ClockRate: 120000000, Properties: spt_i2c_properties}
	spt_uart_info = PlatformInfo{ClockRate: 120000000, ClockConID: "baudclk", Properties: uart_properties}
	bxt_info      = PlatformInfo{ClockRate: 100000000}
	bxt_uart_info = PlatformInfo{ClockRate: 100000000, ClockConID: "baudclk", Properties: uart_properties}
	bxt_i2c_info  = PlatformInfo{ClockRate: 133000000, Properties: bxt_i2c_properties}
	apl_i2c_info  = PlatformInfo{ClockRate: 133000000, Properties: apl_i2c_properties}
	cnl_i2c_info  = PlatformInfo{ClockRate: 216000000, Properties: spt_i2c_properties}
)

// Profile identifies one known LPSS PCI function.
type Profile struct {
	Vendor   uint16
	Device   uint16
	Platform string
	Info     *PlatformInfo
}

func (p *Profile) ClockRate() uint64 { return p.Info.ClockRate }

func (p *Profile) String() string {
	return fmt.Sprintf("%04x:%04x %s %dMHz", p.Vendor, p.Device, p.Platform, p.Info.ClockRate/1000000)
}

type pciID struct {
	device uint16
	info   *PlatformInfo
}

type family struct {
	platform string
	ids      []pciID
}

var families = []family{
	{"BXT A-Step", []pciID{
		{0x0aac, &bxt_i2c_info}, {0x0aae, &bxt_i2c_info}, {0x0ab0, &bxt_i2c_info}, {0x0ab2, &bxt_i2c_info},
		{0x0ab4, &bxt_i2c_info}, {0x0ab6, &bxt_i2c_info}, {0x0ab8, &bxt_i2c_info}, {0x0aba, &bxt_i2c_info},
		{0x0abc, &bxt_uart_info}, {0x0abe, &bxt_uart_info}, {0x0ac0, &bxt_uart_info}, {0x0ac2, &bxt_info},
		{0x0ac4, &bxt_info}, {0x0ac6, &bxt_info}, {0x0aee, &bxt_uart_info},
	}},
	{"BXT B-Step", []pciID{
		{0x1aac, &bxt_i2c_info}, {0x1aae, &bxt_i2c_info}, {0x1ab0, &bxt_i2c_info}, {0x1ab2, &bxt_i2c_info},
		{0x1ab4, &bxt_i2c_info}, {0x1ab6, &bxt_i2c_info}, {0x1ab8, &bxt_i2c_info}, {0x1aba, &bxt_i2c_info},
		{0x1abc, &bxt_uart_info}, {0x1abe, &bxt_uart_info}, {0x1ac0, &bxt_uart_info}, {0x1ac2, &bxt_info},
		{0x1ac4, &bxt_info}, {0x1ac6, &bxt_info}, {0x1aee, &bxt_uart_info},
	}},
	{"GLK", []pciID{
		{0x31ac, &bxt_i2c_info}, {0x31ae, &bxt_i2c_info}, {0x31b0, &bxt_i2c_info}, {0x31b2, &bxt_i2c_info},
		{0x31b4, &bxt_i2c_info}, {0x31b6, &bxt_i2c_info}, {0x31b8, &bxt_i2c_info}, {0x31ba, &bxt_i2c_info},
		{0x31bc, &bxt_uart_info}, {0x31be, &bxt_uart_info}, {0x31c0, &bxt_uart_info}, {0x31ee, &bxt_uart_info},
		{0x31c2, &bxt_info}, {0x31c4, &bxt_info}, {0x31c6, &bxt_info},
	}},
	{"ICL-LP", []pciID{
		{0x34a8, &spt_uart_info}, {0x34a9, &spt_uart_info}, {0x34aa, &spt_info}, {0x34ab, &spt_info},
		{0x34c5, &bxt_i2c_info}, {0x34c6, &bxt_i2c_info}, {0x34c7, &spt_uart_info}, {0x34e8, &bxt_i2c_info},
		{0x34e9, &bxt_i2c_info}, {0x34ea, &bxt_i2c_info}, {0x34eb, &bxt_i2c_info}, {0x34fb, &spt_info},
	}},
	{"APL", []pciID{
		{0x5aac, &apl_i2c_info}, {0x5aae, &apl_i2c_info}, {0x5ab0, &apl_i2c_info}, {0x5ab2, &apl_i2c_info},
		{0x5ab4, &apl_i2c_info}, {0x5ab6, &apl_i2c_info}, {0x5ab8, &apl_i2c_info}, {0x5aba, &apl_i2c_info},
		{0x5abc, &bxt_uart_info}, {0x5abe, &bxt_uart_info}, {0x5ac0, &bxt_uart_info}, {0x5ac2, &bxt_info},
		{0x5ac4, &bxt_info}, {0x5ac6, &bxt_info}, {0x5aee, &bxt_uart_info},
	}},
	{"SPT-LP", []pciID{
		{0x9d27, &spt_uart_info}, {0x9d28, &spt_uart_info}, {0x9d29, &spt_info}, {0x9d2a, &spt_info},
		{0x9d60, &spt_i2c_info}, {0x9d61, &spt_i2c_info}, {0x9d62, &spt_i2c_info}, {0x9d63, &spt_i2c_info},
		{0x9d64, &spt_i2c_info}, {0x9d65, &spt_i2c_info}, {0x9d66, &spt_uart_info},
	}},
	{"CNL-LP", []pciID{
		{0x9da8, &spt_uart_info}, {0x9da9, &spt_uart_info}, {0x9daa, &spt_info}, {0x9dab, &spt_info},
		{0x9dfb, &spt_info}, {0x9dc5, &cnl_i2c_info}, {0x9dc6, &cnl_i2c_info}, {0x9dc7, &spt_uart_info},
		{0x9de8, &cnl_i2c_info}, {0x9de9, &cnl_i2c_info}, {0x9dea, &cnl_i2c_info}, {0x9deb, &cnl_i2c_info},
	}},
	{"SPT-H", []pciID{
		{0xa127, &spt_uart_info}, {0xa128, &spt_uart_info}, {0xa129, &spt_info}, {0xa12a, &spt_info},
		{0xa160, &spt_i2c_info}, {0xa161, &spt_i2c_info}, {0xa162, &spt_i2c_info}, {0xa166, &spt_uart_info},
	}},
	{"KBL-H", []pciID{
		{0xa2a7, &spt_uart_info}, {0xa2a8, &spt_uart_info}, {0xa2a9, &spt_info}, {0xa2aa, &spt_info},
		{0xa2e0, &spt_i2c_info}, {0xa2e1, &spt_i2c_info}, {0xa2e2, &spt_i2c_info}, {0xa2e3, &spt_i2c_info},
		{0xa2e6, &spt_uart_info},
	}},
	{"CNL-H", []pciID{
		{0xa328, &spt_uart_info}, {0xa329, &spt_uart_info}, {0xa32a, &spt_info}, {0xa32b, &spt_info},
		{0xa37b, &spt_info}, {0xa347, &spt_uart_info}, {0xa368, &cnl_i2c_info}, {0xa369, &cnl_i2c_info},
		{0xa36a, &cnl_i2c_info}, {0xa36b, &cnl_i2c_info},
	}},
}

var profiles map[uint32]*Profile
var profileList []*Profile

func init() {
	profiles = make(map[uint32]*Profile)
	for _, f := range families {
		for _, id := range f.ids {
			p := &Profile{Vendor: PCI_VENDOR_INTEL, Device: id.device, Platform: f.platform, Info: id.info}
			profiles[profileKey(p.Vendor, p.Device)] = p
			profileList = append(profileList, p)
		}
	}
}

func profileKey(vendor, device uint16) uint32 {
	return uint32(vendor)<<16 | uint32(device)
}

// LookupProfile finds the profile of a PCI function.
func LookupProfile(vendor, device uint16) (*Profile, bool) {
	p, ok := profiles[profileKey(vendor, device)]
	return p, ok
}

// Profiles lists every known function in table order.
func Profiles() []*Profile {
	return append([]*Profile(nil), profileList...)
}

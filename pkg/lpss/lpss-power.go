// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the reset and remap sequence of the private block
package lpss

// DeassertReset brings the function and the iDMA engine out of reset.
func DeassertReset(priv *Window) {
	priv.Write32(LPSS_PRIV_RESETS, LPSS_PRIV_RESETS_FUNC|LPSS_PRIV_RESETS_IDMA)
}

// AssertReset puts the function and the iDMA engine into reset.
func AssertReset(priv *Window) {
	priv.Write32(LPSS_PRIV_RESETS, 0)
}

func setRemapAddr(priv *Window) {
	priv.Write64(LPSS_PRIV_REMAP_ADDR, uint64(priv.VirtAddr()))
}

// InitDev runs the power-on sequence. It can be repeated safely.
func InitDev(priv *Window, caps Capabilities) {
	DeassertReset(priv)

	if !caps.HasDMA {
		return
	}
	setRemapAddr(priv)

	// Make sure that SPI multiblock DMA transfers are re-enabled
	if caps.SPIQuirk() {
		priv.Write32(LPSS_PRIV_SSP_REG, LPSS_PRIV_SSP_REG_DIS_DMA_FIN)
	}
}

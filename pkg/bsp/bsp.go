// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bsp defines the board-support interfaces the device driver
// consumes for hardware bring-up and link configuration, kept separate from
// enet so that driver logic never depends on a particular board package
// (§6 "Downward (to device BSP)").
package bsp

// Board groups the hardware bring-up hooks a DeviceDriver invokes once, at
// init time, before touching any MAC/DMA register. Each call is expected to
// be synchronous and idempotent; the driver does not retry on failure.
type Board interface {
	// CfgClk enables and gates the peripheral clock for interface ifNbr.
	CfgClk(ifNbr int) error

	// CfgInterruptController routes and unmasks the interface's interrupt
	// line at the platform interrupt controller.
	CfgInterruptController(ifNbr int) error

	// CfgGPIO configures pin muxing/pad settings (reset, PHY strap pins,
	// MII/RMII signal routing) for the interface.
	CfgGPIO(ifNbr int) error

	// ClkFreqGet returns the input clock frequency, in Hz, feeding the
	// interface's MII management clock divider. The driver uses this at
	// init time to select among its divisor presets.
	ClkFreqGet(ifNbr int) (hz uint32, err error)
}

// PHY transacts IEEE 802.3 Clause 22 MII management frames against a
// connected Ethernet PHY, mirroring the ENET driver's MDIO22-derived
// ReadPHYRegister/WritePHYRegister pair so that PHY access is pluggable
// independent of the MAC register layout.
type PHY interface {
	ReadPHYRegister(phyAddr, regAddr int) (data uint16, err error)
	WritePHYRegister(phyAddr, regAddr int, data uint16) error
}

// IEEE 802.3-2008 Clause 22 MDIO frame fields, shared by every MAC's MII
// management-frame composition regardless of register layout.
const (
	MdioST      = 0b01
	MdioOpRead  = 0b10
	MdioOpWrite = 0b01
	MdioTA      = 0b10
)

// IEEE 802.3-2008 Clause 45 MDIO frame fields.
const (
	Mdio45ST         = 0b00
	Mdio45OpAddr     = 0b00
	Mdio45OpWrite    = 0b01
	Mdio45OpReadInc  = 0b10
	Mdio45OpRead     = 0b11
	Mdio45TA         = 0b10
)

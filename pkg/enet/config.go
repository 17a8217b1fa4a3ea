// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package enet implements the DMA-descriptor Ethernet driver: ring buffer
// ownership handoff between CPU and DMA engine, interrupt-driven
// receive/transmit coordination with a dedicated worker task, PHY
// configuration and multicast hash filtering (§4.2).
//
// The register map is injected through Regs rather than hardcoded, so the
// same driver logic serves any MAC whose descriptor rings and interrupt
// taxonomy follow this shape; only the register offsets and bit positions
// change between controllers.
package enet

import "time"

// Variant selects the descriptor format and DMA feature set a controller
// instance requires, chosen at driver-init time (§9 "model the two
// descriptor formats as a variant tag selected at driver-init time").
type Variant int

const (
	// VariantBasic uses the legacy (non-enhanced) descriptor format.
	VariantBasic Variant = iota
	// VariantExtended uses the enhanced, timestamp-carrying descriptor
	// format.
	VariantExtended
)

// Duplex and Speed are the link parameters SetLinkState accepts.
type Duplex int

const (
	Half Duplex = iota
	Full
)

type Speed int

const (
	Speed10 Speed = 10
	Speed100 Speed = 100
	Speed1000 Speed = 1000
)

// clock divisor presets for the MII management clock, selected from the
// input clock frequency at init time (§4.2: "selecting among six defined
// divisor presets"). Values are MSCR_MII_SPEED field settings for a
// controller whose management clock must stay at or below 2.5MHz.
var miiDivisorPresets = []struct {
	maxInputHz uint32
	divisor    uint32
}{
	{12500000, 1},
	{25000000, 2},
	{50000000, 4},
	{75000000, 6},
	{100000000, 8},
	{150000000, 12},
}

func miiDivisorFor(inputHz uint32) uint32 {
	for _, p := range miiDivisorPresets {
		if inputHz <= p.maxInputHz {
			return p.divisor
		}
	}
	return miiDivisorPresets[len(miiDivisorPresets)-1].divisor
}

// Regs is the set of register addresses a controller instance binds before
// Init; offsets vary between controller families but the fields below cover
// every register this driver touches.
type Regs struct {
	EIR   uint32 // interrupt event
	EIMR  uint32 // interrupt mask
	RDAR  uint32 // receive descriptor active (poll demand)
	TDAR  uint32 // transmit descriptor active (poll demand)
	ECR   uint32 // ethernet control (reset, enable)
	MMFR  uint32 // MII management frame
	MSCR  uint32 // MII speed control
	RCR   uint32 // receive control (filter, max frame length)
	TCR   uint32 // transmit control (duplex)
	PALR  uint32 // physical address low
	PAUR  uint32 // physical address high
	RDSR  uint32 // receive descriptor ring start
	TDSR  uint32 // transmit descriptor ring start
	MRBR  uint32 // maximum receive buffer size
	IAUR  uint32 // individual hash table upper (multicast hash)
	IALR  uint32 // individual hash table lower
	GAUR  uint32 // group hash table upper
	GALR  uint32 // group hash table lower

	DMAOMR uint32 // DMA operation mode (store-and-forward, FIFO flush, Tx/Rx enable)
	DMABMR uint32 // DMA bus mode (burst length, address-aligned beats, descriptor format)
}

// Interrupt event bits, shared between EIR (status, write-1-to-clear) and
// EIMR (mask). Bit positions follow the common ENET-family layout.
const (
	IrqBusError    = 22 // fatal bus error
	IrqRxFrame     = 25 // rx-done
	IrqRxBuf       = 24 // rx-buffer-unavailable
	IrqTxFrame     = 27 // tx-done
	IrqTxBuf       = 26
	IrqGraceful    = 28 // process-stopped
	IrqBabrRx      = 30 // rx-fifo-overflow (babbling receiver)
	IrqBabtTx      = 29
	IrqMII         = 23

	// irqRxMask groups the receive-side interrupts (rx-done,
	// rx-buffer-unavailable, rx-fifo-overflow, process-stopped) that
	// isrRx masks and rxFrame re-enables; irqTxMask is tx-done. Both are
	// enabled at Start; Isr itself re-enables only IrqBusError on exit.
	irqRxMask = 1<<IrqRxFrame | 1<<IrqRxBuf | 1<<IrqBabrRx | 1<<IrqGraceful
	irqTxMask = 1 << IrqTxFrame
)

// enableMask is the union of interrupts Start enables (§4.2 start()):
// {rx-done, tx-done, rx-fifo-overflow, rx-buffer-unavailable,
// rx-process-stopped, fatal-bus-error}. This event layout defines no
// normal-summary or abnormal-summary bit, so none is enabled.
const enableMask = irqRxMask | irqTxMask | 1<<IrqBusError

// ECR (ethernet control register) bits.
const (
	ecrReset   = 0
	ecrEnable  = 1
)

// RCR (receive control register) bits.
const (
	rcrLoop          = 0
	rcrMII           = 2
	rcrFCE           = 5 // pause-frame auto-generation enable
	rcrHashPerfect   = 10
	rcrHashMcastEn   = 9
)

// TCR (transmit control register) bits.
const (
	tcrFullDuplex = 2
)

// DMAOMR (DMA operation mode register) bits (§4.2 init(): "configure DMA mode
// per variant: store-and-forward on both paths ... start(): enable DMA
// transmit/receive and the flush-Tx-FIFO bit"). Bit positions follow the
// GMAC-family DMA operation-mode register this driver's DMA-mode handling is
// modeled on.
const (
	dmaomrRSF = 25 // receive store-and-forward
	dmaomrTSF = 21 // transmit store-and-forward
	dmaomrFTF = 20 // flush transmit FIFO
	dmaomrST  = 13 // start/stop transmission
	dmaomrSR  = 1  // start/stop reception
)

// DMABMR (DMA bus mode register) bits: address-aligned beats and the
// enhanced-descriptor-format enable the extended variant requires, plus the
// burst-length field both variants configure at a fixed, conservative beat
// count (§4.2 init()).
const (
	dmabmrAAL  = 25 // address-aligned beats
	dmabmrEDFE = 7  // enhanced descriptor format enable
	dmabmrUSP  = 23 // use separate Rx/Tx burst-length fields

	dmabmrRxBurst1Beat = 1 << 17 // RxDMA PBL: 1 beat per transfer
	dmabmrTxBurst1Beat = 1 << 8  // TxDMA PBL: 1 beat per transfer
)

const (
	minDescriptorCount = 2
	bufferAlignMin     = 16
	rxBufSizeMultiple  = 16

	pktSizeHdr = 14
	pktSizeMin = 60
	pktSizeMax = 1518
)

// Config parameterizes Init (§4.2 init()).
type Config struct {
	IfNbr int

	Regs    Regs
	Variant Variant

	// RxBufSize is the receive data-region size, must be a multiple of
	// 16.
	RxBufSize int
	// Align is the descriptor/data-region alignment, must be >= 16.
	Align int
	// RxCount, TxCount are descriptor ring lengths, each must be >= 2.
	RxCount, TxCount int

	// ResetTimeout bounds the MAC soft-reset poll loop.
	ResetTimeout time.Duration
	// MIITimeout bounds MII busy-bit poll loops.
	MIITimeout time.Duration

	// ExplicitMAC is the explicitly configured hardware address, taking
	// precedence over SetMAC and the autoloaded register value: highest
	// precedence in start()'s address selection (§4.2 start()).
	ExplicitMAC [6]byte
	HasExplicitMAC bool
}

// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package example wires one interface's BufferPool, DeviceDriver and
// LinkLayer together against a generic register layout, mirroring the way a
// board package binds a specific SoC's ENET instance to the driver package
// but without depending on any particular silicon (§6 "Downward (to device
// BSP)").
//
// A real board package replaces RegisterBase/ClkFreqGet/CfgGPIO with values
// and side effects specific to its SoC; everything else here carries over
// unchanged.
package example

import (
	"github.com/usbarmory/netcore/pkg/bsp"
	"github.com/usbarmory/netcore/pkg/dma"
	"github.com/usbarmory/netcore/pkg/enet"
	"github.com/usbarmory/netcore/pkg/linklayer"
	"github.com/usbarmory/netcore/pkg/netbuf"
	"github.com/usbarmory/netcore/pkg/upperlayer"
)

// Interface bundles everything wiring one network interface end to end.
type Interface struct {
	Pool       *netbuf.BufferPool
	Driver     *enet.Driver
	LinkLayer  *linklayer.LinkLayer
	Dispatcher *upperlayer.Dispatcher
	Dealloc    *upperlayer.ChanDeallocator
}

// Board implements bsp.Board against a generic memory-mapped register
// layout; RegisterBase is the MAC's register block base address and
// InputClockHz is the frequency feeding its MII management-clock divider.
type Board struct {
	RegisterBase uint32
	InputClockHz uint32
}

func (b *Board) CfgClk(ifNbr int) error                 { return nil }
func (b *Board) CfgInterruptController(ifNbr int) error { return nil }
func (b *Board) CfgGPIO(ifNbr int) error                { return nil }

func (b *Board) ClkFreqGet(ifNbr int) (uint32, error) {
	return b.InputClockHz, nil
}

// GenericPHY adapts a Driver's own MII transaction methods to bsp.PHY, for
// boards with no PHY abstraction of their own.
type GenericPHY struct {
	Driver *enet.Driver
}

func (p *GenericPHY) ReadPHYRegister(phyAddr, regAddr int) (uint16, error) {
	return p.Driver.MiiRead(phyAddr, regAddr)
}

func (p *GenericPHY) WritePHYRegister(phyAddr, regAddr int, data uint16) error {
	return p.Driver.MiiWrite(phyAddr, regAddr, data)
}

// regs lays out a plausible ENET-family register block at consecutive
// offsets from base, for boards that do not already define their own
// constants (§4.2 Regs).
func regs(base uint32) enet.Regs {
	return enet.Regs{
		EIR:  base + 0x004,
		EIMR: base + 0x008,
		RDAR: base + 0x010,
		TDAR: base + 0x014,
		ECR:  base + 0x024,
		MMFR: base + 0x040,
		MSCR: base + 0x044,
		RCR:  base + 0x084,
		TCR:  base + 0x0c4,
		PALR: base + 0x0e4,
		PAUR: base + 0x0e8,
		RDSR: base + 0x180,
		TDSR: base + 0x184,
		MRBR: base + 0x188,
		IAUR: base + 0x118,
		IALR: base + 0x11c,
		GAUR: base + 0x120,
		GALR: base + 0x124,

		DMAOMR: base + 0x400,
		DMABMR: base + 0x404,
	}
}

// New configures and starts one interface: BufferPool sub-pools sized per
// cfg, the device driver bound to board and phy, and a LinkLayer dispatching
// through dispatcher. cache resolves destination hardware addresses for
// buffers the link layer cannot address immediately.
func New(ifNbr int, board *Board, phy bsp.PHY, dispatcher *upperlayer.Dispatcher, cache linklayer.ArpCache) (*Interface, error) {
	const (
		rxBufSize = 1536
		align     = 64
		rxCount   = 8
		txCount   = 8

		headerCount  = 32
		txSmallSize  = 256
		txSmallCount = 8
		txLargeCount = 8
	)

	pool := netbuf.NewBufferPool(ifNbr, linklayer.PktSizeMin)

	if err := pool.PoolInit(netbuf.Header, netbuf.Config{BlockNbr: headerCount}); err != nil {
		return nil, err
	}
	if err := pool.PoolInit(netbuf.RxLarge, netbuf.Config{BlockNbr: rxCount, BlockSize: rxBufSize, Align: align}); err != nil {
		return nil, err
	}
	if err := pool.PoolInit(netbuf.TxLarge, netbuf.Config{BlockNbr: txLargeCount, BlockSize: rxBufSize, Align: align}); err != nil {
		return nil, err
	}
	if err := pool.PoolInit(netbuf.TxSmall, netbuf.Config{BlockNbr: txSmallCount, BlockSize: txSmallSize, Align: align}); err != nil {
		return nil, err
	}

	drv := enet.New(dma.Default())
	drv.Pool = pool
	drv.Board = board

	if phy != nil {
		drv.PHY = phy
	} else {
		drv.PHY = &GenericPHY{Driver: drv}
	}

	dealloc := upperlayer.NewChanDeallocator(txCount * 2)
	drv.Dealloc = dealloc

	if err := drv.Init(enet.Config{
		IfNbr:     ifNbr,
		Regs:      regs(board.RegisterBase),
		Variant:   enet.VariantExtended,
		RxBufSize: rxBufSize,
		Align:     align,
		RxCount:   rxCount,
		TxCount:   txCount,
	}); err != nil {
		return nil, err
	}

	state := &linklayer.InterfaceState{IfNbr: ifNbr, Enabled: true}
	ll := linklayer.New(state, dispatcher, drv, cache)

	drv.RxHandler = func(buf *netbuf.NetBuffer) {
		if err := ll.Rx(buf); err != nil {
			netbuf.Free(buf)
		}
	}

	go dealloc.Run()

	if err := drv.Start(); err != nil {
		return nil, err
	}

	state.HWAddr = drv.HWAddr()
	ll.MTUSet(linklayer.PktSizeMax-linklayer.PktSizeHdr, txSmallSize)

	return &Interface{
		Pool:       pool,
		Driver:     drv,
		LinkLayer:  ll,
		Dispatcher: dispatcher,
		Dealloc:    dealloc,
	}, nil
}

// Stop tears down the interface's worker task, device and deallocation
// queue in dependency order.
func (i *Interface) Stop() {
	i.Driver.Stop()
	i.Dealloc.Close()
}

// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usbarmory/netcore/pkg/bsp"
	"github.com/usbarmory/netcore/pkg/dma"
	"github.com/usbarmory/netcore/pkg/netbuf"
	"github.com/usbarmory/netcore/pkg/reg"
	"github.com/usbarmory/netcore/pkg/upperlayer"
)

// Stats tracks the driver's per-interface hardware-error counters; it is
// the "counter" target of every discard-not-propagate decision in the
// receive and interrupt paths (§7 "Propagation policy").
type Stats struct {
	FatalBusError uint32
	RxDiscard     uint32
	RxUndersize   uint32
	RxErrorSummary uint32
}

// Driver owns one controller instance's descriptor rings, register block
// and worker-task coordination (§4.2 DeviceDriver). It is the Go analogue
// of the ENET driver this package is modeled on, generalized to the
// extended operation set (variants, multicast hash filtering, interface
// state) this specification requires.
type Driver struct {
	cfg   Config
	regs  Regs
	mu    sync.Mutex // guards configuration and ring cursors from task context

	Pool  *netbuf.BufferPool
	Board bsp.Board
	PHY   bsp.PHY
	Dealloc upperlayer.TxDeallocator

	// RxHandler receives each successfully classified receive buffer;
	// installed by the caller before Start.
	RxHandler func(buf *netbuf.NetBuffer)

	mac       [6]byte
	linkSpeed Speed

	region *dma.Region

	rx *ring
	tx *ring

	txAvail     int32 // atomic: free Tx descriptor count
	txPending   map[int]txEntry
	txPendingMu sync.Mutex

	rxSignal chan struct{} // depth 1: ISR-to-worker wakeup, never blocks on send
	rxArmed  int32         // atomic: 1 while rx-related interrupts are masked pending worker drain

	mcastRefCount [64]uint32
	mcastMu       sync.Mutex

	Stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
}

// New returns a driver instance bound to region for descriptor and replacement
// buffer allocation. region is typically dma.Default().
func New(region *dma.Region) *Driver {
	return &Driver{
		region:    region,
		rxSignal:  make(chan struct{}, 1),
		txPending: make(map[int]txEntry),
	}
}

// Init validates cfg and brings the controller to a configured-but-stopped
// state: MAC reset, MII clock divisor, MAC-control bits, Rx filter and DMA
// mode, but does not enable Rx/Tx or interrupts (§4.2 init()).
func (d *Driver) Init(cfg Config) error {
	if cfg.RxBufSize%rxBufSizeMultiple != 0 {
		return ErrInvalidCfg
	}
	if cfg.Align < bufferAlignMin {
		return ErrInvalidCfg
	}
	if cfg.RxCount < minDescriptorCount || cfg.TxCount < minDescriptorCount {
		return ErrInvalidCfg
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cfg = cfg
	d.regs = cfg.Regs

	if err := d.resetMAC(); err != nil {
		return err
	}

	hz, err := d.clockFreq()
	if err != nil {
		return err
	}
	reg.SetN(d.regs.MSCR, 1, 0x3f, miiDivisorFor(hz))

	// MAC-control bits: full-duplex (TCR), MII mode with loopback off
	// (RCR). Regs has no watchdog, inter-frame-gap, speed or back-off
	// field, so none of those is written here.
	reg.Set(d.regs.TCR, tcrFullDuplex)
	reg.Set(d.regs.RCR, rcrMII)
	reg.Clear(d.regs.RCR, rcrLoop)

	// Rx filter: hash-perfect-match, multicast-hash-enabled.
	reg.Set(d.regs.RCR, rcrHashPerfect)
	reg.Set(d.regs.RCR, rcrHashMcastEn)

	// Disable pause-frame auto-generation.
	reg.Clear(d.regs.RCR, rcrFCE)

	reg.Write(d.regs.MRBR, uint32(cfg.RxBufSize))

	// DMA bus mode: address-aligned beats, a conservative fixed burst
	// length on both Rx and Tx, and the enhanced descriptor format when
	// the variant requires it (§4.2 init()).
	dmabmr := uint32(1<<dmabmrAAL | 1<<dmabmrUSP | dmabmrRxBurst1Beat | dmabmrTxBurst1Beat)
	if cfg.Variant == VariantExtended {
		dmabmr |= 1 << dmabmrEDFE
	}
	reg.Write(d.regs.DMABMR, dmabmr)

	// DMA operation mode: store-and-forward on both the receive and
	// transmit paths, so a frame is only handed upward (or to the wire)
	// once it has been fully buffered (§4.2 init()).
	reg.Set(d.regs.DMAOMR, dmaomrRSF)
	reg.Set(d.regs.DMAOMR, dmaomrTSF)

	return nil
}

func (d *Driver) clockFreq() (uint32, error) {
	if d.Board == nil {
		return 0, ErrInvalidCfg
	}
	return d.Board.ClkFreqGet(d.cfg.IfNbr)
}

func (d *Driver) resetMAC() error {
	timeout := d.cfg.ResetTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	reg.Write(d.regs.EIR, 0xffffffff)
	reg.Write(d.regs.EIMR, 0)

	reg.Set(d.regs.ECR, ecrReset)

	if !reg.WaitFor(timeout, d.regs.ECR, ecrReset, 1, 0) {
		return ErrTimeoutReset
	}

	return nil
}

// macAddress resolves the hardware address by precedence: explicit
// configuration, then administratively set, then the device's autoloaded
// register value (§4.2 start()).
func (d *Driver) macAddress() [6]byte {
	if d.cfg.HasExplicitMAC {
		return d.cfg.ExplicitMAC
	}

	if d.mac != ([6]byte{}) {
		return d.mac
	}

	lower := reg.Read(d.regs.PALR)
	upper := reg.Read(d.regs.PAUR)

	var mac [6]byte
	mac[0] = byte(lower >> 24)
	mac[1] = byte(lower >> 16)
	mac[2] = byte(lower >> 8)
	mac[3] = byte(lower)
	mac[4] = byte(upper >> 24)
	mac[5] = byte(upper >> 16)

	return mac
}

// HWAddr returns the hardware address Start resolved and wrote to the MAC.
func (d *Driver) HWAddr() [6]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mac
}

// SetMAC administratively sets the hardware address, taking precedence over
// the autoloaded register value but not an explicit Config.ExplicitMAC.
func (d *Driver) SetMAC(mac [6]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mac = mac
}

func (d *Driver) writeMAC(mac [6]byte) {
	lower := uint32(mac[0])<<24 | uint32(mac[1])<<16 | uint32(mac[2])<<8 | uint32(mac[3])
	upper := uint32(mac[4])<<24 | uint32(mac[5])<<16

	reg.Write(d.regs.PALR, lower)
	reg.Write(d.regs.PAUR, upper)
}

// Start resolves the hardware address, allocates and arms the descriptor
// rings, enables MAC and DMA Tx/Rx, and enables the full interrupt set
// (§4.2 start()).
func (d *Driver) Start() error {
	d.mu.Lock()

	mac := d.macAddress()
	d.writeMAC(mac)
	d.mac = mac

	d.tx = newTxRing(d.region, d.cfg.TxCount, d.cfg.Align, d.cfg.Variant)
	atomic.StoreInt32(&d.txAvail, int32(d.cfg.TxCount))

	d.rx = newRxRing(d.region, d.cfg.RxCount, d.cfg.Align, d.cfg.RxBufSize, d.cfg.Variant, func() (uint32, []byte) {
		addr, data, err := d.Pool.GetDataPtr(netbuf.Rx, d.cfg.RxBufSize, 0)
		if err != nil {
			// Pool exhaustion at start() is a configuration error: the
			// receive ring cannot be armed without a region per
			// descriptor.
			panic("enet: buffer pool exhausted during rx ring init: " + err.Error())
		}
		return addr, data
	})

	reg.Write(d.regs.RDSR, d.rx.baseAddr())
	reg.Write(d.regs.TDSR, d.tx.baseAddr())

	reg.Set(d.regs.ECR, ecrEnable)

	// Flush the Tx FIFO of any stale content left over from a previous
	// run, then enable DMA transmit and receive (§4.2 start(): "enable
	// DMA transmit/receive and the flush-Tx-FIFO bit").
	reg.Set(d.regs.DMAOMR, dmaomrFTF)
	reg.Set(d.regs.DMAOMR, dmaomrST)
	reg.Set(d.regs.DMAOMR, dmaomrSR)

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.started = true

	d.mu.Unlock()

	d.wg.Add(1)
	go d.runRxWorker()

	reg.Write(d.regs.EIMR, enableMask)
	reg.Set(d.regs.RDAR, 1)

	return nil
}

// Stop disables DMA Tx then Rx (flushing the Tx FIFO between), disables the
// MAC, masks and clears all interrupts, posts every outstanding Tx buffer
// to the deallocation queue, and releases every Rx descriptor's data
// region (§4.2 stop(), §5 "Cancellation and timeouts").
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}

	// Disable DMA Tx, flush the Tx FIFO, then disable DMA Rx: the flush
	// must happen between the two so any frame still in flight on the Tx
	// side is discarded before the MAC itself is torn down (§4.2 stop()).
	reg.Clear(d.regs.DMAOMR, dmaomrST)
	reg.Set(d.regs.DMAOMR, dmaomrFTF)
	reg.Clear(d.regs.DMAOMR, dmaomrSR)

	reg.Clear(d.regs.TCR, tcrFullDuplex)
	reg.Clear(d.regs.RCR, rcrMII)
	reg.Clear(d.regs.ECR, ecrEnable)

	reg.Write(d.regs.EIMR, 0)
	reg.Write(d.regs.EIR, 0xffffffff)

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	// Outstanding Tx buffers are tracked in the driver's own pending
	// map maintained in tx.go (txPending), not by the descriptor ring
	// itself; postPendingTx below posts all of them regardless of
	// transmission state.
	d.postPendingTx()

	if d.rx != nil && d.Pool != nil {
		for _, desc := range d.rx.descs {
			if desc.addr != 0 {
				d.Pool.FreeDataAreaRx(desc.addr, desc.data)
			}
		}
	}

	d.started = false
}

// IoCtrl implements the {GetLinkStateInfo, SetLinkState} operation pair
// (§4.2 io_ctrl()).
type IoCtrlOp int

const (
	GetLinkStateInfo IoCtrlOp = iota
	SetLinkState
)

// LinkState is the payload for SetLinkState.
type LinkState struct {
	Duplex Duplex
	Speed  Speed
}

func (d *Driver) IoCtrl(op IoCtrlOp, data any) (any, error) {
	switch op {
	case GetLinkStateInfo:
		if d.PHY == nil {
			return nil, ErrInvalidCfg
		}
		bmsr, err := d.PHY.ReadPHYRegister(0, 1)
		if err != nil {
			return nil, err
		}
		return bmsr, nil

	case SetLinkState:
		ls, ok := data.(LinkState)
		if !ok {
			return nil, ErrInvalidCfg
		}

		d.mu.Lock()
		defer d.mu.Unlock()

		reg.SetTo(d.regs.TCR, tcrFullDuplex, ls.Duplex == Full)

		// This register family has no MAC-side speed select: the
		// PHY autonegotiates 10/100/1000 and the MAC tracks it.
		// Speed is recorded in d.linkSpeed rather than written to a
		// register; GetLinkStateInfo does not report it.
		d.linkSpeed = ls.Speed

		return nil, nil

	default:
		return nil, ErrInvalidCfg
	}
}

// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package netbuf

import (
	"sync"
	"sync/atomic"

	"github.com/usbarmory/netcore/pkg/dma"
)

// Stats tracks a sub-pool's lifecycle counters. Total buffers in circulation
// (Free + InUse + Lost) always equals Configured (§8).
type Stats struct {
	Configured int32
	InUse      int32
	Lost       int32
}

// Free returns the number of blocks currently available for allocation.
func (s Stats) Free() int32 {
	return s.Configured - s.InUse - s.Lost
}

// dataPool is a fixed-capacity pool of same-size data regions, each reserved
// once at init time from a dma.Region and never released back to it.
type dataPool struct {
	mu         sync.Mutex
	configured bool
	blockSize  int
	free       []*region
	stats      Stats
}

type region struct {
	addr uint32
	data []byte
}

func newDataPool(region_ *dma.Region, base uint32, memSize int, count int, blockSize int, align int) (*dataPool, error) {
	p := &dataPool{blockSize: blockSize}

	var r *dma.Region
	if base != 0 {
		r = dma.NewRegion(base, uint32(memSize))
	} else {
		r = region_
	}

	for i := 0; i < count; i++ {
		addr, data := r.Reserve(blockSize, align)
		p.free = append(p.free, &region{addr: addr, data: data})
	}

	p.configured = true
	p.stats.Configured = int32(count)

	return p, nil
}

// get pops one free block, or returns ErrNoneAvail.
func (p *dataPool) get() (*region, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, ErrNoneAvail
	}

	b := p.free[n-1]
	p.free = p.free[:n-1]
	p.stats.InUse++

	return b, nil
}

// put returns a block to the free list. ok=false models a caller-detected
// corrupted-block pool-return failure; put also detects one itself: a block
// whose address is already on the free list would, if appended again, let
// the same physical region be handed out to two concurrent owners. Either
// way the discard policy (§4.1) keeps the block out of circulation
// permanently and bumps Lost instead of panicking or retrying.
func (p *dataPool) put(b *region, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.InUse--

	if ok {
		for _, f := range p.free {
			if f.addr == b.addr {
				ok = false
				break
			}
		}
	}

	if !ok {
		p.stats.Lost++
		return
	}

	p.free = append(p.free, b)
}

// headerPool preallocates NetBuffer headers and hands out pointers from a
// free-list stack, so that header allocation never touches the Go heap past
// PoolInit.
type headerPool struct {
	mu    sync.Mutex
	all   []*NetBuffer
	free  []*NetBuffer
	stats Stats
}

func newHeaderPool(count int) *headerPool {
	p := &headerPool{}
	p.all = make([]*NetBuffer, count)

	for i := range p.all {
		p.all[i] = &NetBuffer{}
		p.free = append(p.free, p.all[i])
	}

	p.stats.Configured = int32(count)

	return p
}

func (p *headerPool) get() (*NetBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, ErrNoneAvail
	}

	b := p.free[n-1]
	p.free = p.free[:n-1]
	p.stats.InUse++

	return b, nil
}

// put mirrors dataPool.put's double-return detection: a header already on
// the free list being handed back again would otherwise let the same header
// be drawn by two independent Get callers.
func (p *headerPool) put(b *NetBuffer, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.InUse--

	if ok {
		for _, f := range p.free {
			if f == b {
				ok = false
				break
			}
		}
	}

	if !ok {
		p.stats.Lost++
		return
	}

	b.clearHeader()
	p.free = append(p.free, b)
}

// Config is the set of parameters accepted by PoolInit for a single typed
// sub-pool.
type Config struct {
	// BaseAddr carves a dedicated memory region for this sub-pool when
	// non-zero; otherwise blocks are drawn from the package-default DMA
	// region (dma.Default()), which must already be initialized.
	BaseAddr  uint32
	MemSize   int
	BlockNbr  int
	BlockSize int
	Align     int
}

// BufferPool owns one interface's four typed sub-pools (header, RxLarge,
// TxLarge, TxSmall) and the monotonic buffer ID counter. Every BufferPool
// method is safe to call only from task context, never from an ISR (§5).
type BufferPool struct {
	IfNbr int

	minFrameSize int

	header  *headerPool
	rxLarge *dataPool
	txLarge *dataPool
	txSmall *dataPool

	idCtr uint64
}

// NewBufferPool constructs an (as yet unconfigured) pool set for one
// interface. minFrameSize is the link layer's minimum frame size, enforced
// against every data sub-pool's configured block size.
func NewBufferPool(ifNbr int, minFrameSize int) *BufferPool {
	return &BufferPool{IfNbr: ifNbr, minFrameSize: minFrameSize}
}

// PoolInit creates one of the four sub-pools (§4.1). It rejects
// configurations where block_size is below the interface's minimum frame
// size, where the configured small transmit block size exceeds the large
// one, or where the receive count is below 1 or the total transmit count
// (large+small) is below 1.
func (bp *BufferPool) PoolInit(t BufType, cfg Config) error {
	if t != Header && cfg.BlockSize < bp.minFrameSize {
		return ErrInvalidBlockSize
	}

	switch t {
	case Header:
		if cfg.BlockNbr < 1 {
			return ErrInvalidCount
		}
		if bp.header != nil {
			return ErrAlreadyConfigured
		}
		bp.header = newHeaderPool(cfg.BlockNbr)

	case RxLarge:
		if cfg.BlockNbr < 1 {
			return ErrInvalidCount
		}
		if bp.rxLarge != nil {
			return ErrAlreadyConfigured
		}
		p, err := newDataPool(dma.Default(), cfg.BaseAddr, cfg.MemSize, cfg.BlockNbr, cfg.BlockSize, cfg.Align)
		if err != nil {
			return err
		}
		bp.rxLarge = p

	case TxLarge:
		if bp.txLarge != nil {
			return ErrAlreadyConfigured
		}
		if err := bp.checkTxTotal(cfg.BlockNbr, bp.txSmallCount()); err != nil {
			return err
		}
		p, err := newDataPool(dma.Default(), cfg.BaseAddr, cfg.MemSize, cfg.BlockNbr, cfg.BlockSize, cfg.Align)
		if err != nil {
			return err
		}
		bp.txLarge = p

	case TxSmall:
		if bp.txSmall != nil {
			return ErrAlreadyConfigured
		}
		if bp.txLarge != nil && cfg.BlockSize > bp.txLarge.blockSize {
			return ErrSmallExceedsLarge
		}
		if err := bp.checkTxTotal(bp.txLargeCount(), cfg.BlockNbr); err != nil {
			return err
		}
		p, err := newDataPool(dma.Default(), cfg.BaseAddr, cfg.MemSize, cfg.BlockNbr, cfg.BlockSize, cfg.Align)
		if err != nil {
			return err
		}
		bp.txSmall = p

	default:
		return ErrInvalidPoolType
	}

	return nil
}

func (bp *BufferPool) txLargeCount() int {
	if bp.txLarge == nil {
		return 0
	}
	return int(bp.txLarge.stats.Configured)
}

func (bp *BufferPool) txSmallCount() int {
	if bp.txSmall == nil {
		return 0
	}
	return int(bp.txSmall.stats.Configured)
}

func (bp *BufferPool) checkTxTotal(large, small int) error {
	if large+small < 1 {
		return ErrInvalidCount
	}
	return nil
}

// RxLargeStats, TxLargeStats, TxSmallStats and HeaderStats expose each
// sub-pool's lifecycle counters (§8: Free+InUse+Lost == Configured).
func (bp *BufferPool) RxLargeStats() Stats { return bp.statsOf(bp.rxLarge) }
func (bp *BufferPool) TxLargeStats() Stats { return bp.statsOf(bp.txLarge) }
func (bp *BufferPool) TxSmallStats() Stats { return bp.statsOf(bp.txSmall) }
func (bp *BufferPool) HeaderStats() Stats {
	if bp.header == nil {
		return Stats{}
	}
	bp.header.mu.Lock()
	defer bp.header.mu.Unlock()
	return bp.header.stats
}

func (bp *BufferPool) statsOf(p *dataPool) Stats {
	if p == nil {
		return Stats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (bp *BufferPool) nextID() uint64 {
	return atomic.AddUint64(&bp.idCtr, 1)
}

// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides a first-fit memory allocator for buffers that must
// live at a stable physical address for the lifetime of a DMA transaction.
//
// It backs the "system allocator" fallback of the netbuf.BufferPool
// subsystem (pool_init with no dedicated base address) as well as the
// descriptor ring placement of the enet package, both of which must never
// return to the general Go heap once start-of-day allocation has completed.
package dma

import (
	"container/list"
	"fmt"
	"sync"
)

// Region represents a memory region reserved for DMA buffer allocation.
type Region struct {
	sync.Mutex

	start uint32
	size  uint32

	freeBlocks *list.List
	usedBlocks map[uint32]*block
}

// NewRegion initializes a new Region spanning [start, start+size). The
// caller must guarantee that this range is never used for any other purpose
// (Go heap, stack, other regions) for as long as the Region is in use.
func NewRegion(start uint32, size uint32) *Region {
	r := &Region{
		start: start,
		size:  size,
	}

	r.freeBlocks = list.New()
	r.freeBlocks.PushFront(&block{addr: start, size: size})
	r.usedBlocks = make(map[uint32]*block)

	return r
}

// Start returns the region start address.
func (r *Region) Start() uint32 {
	return r.start
}

// Size returns the region size in octets.
func (r *Region) Size() uint32 {
	return r.size
}

// Avail returns the total free octets remaining in the region, the sum of
// all free blocks regardless of fragmentation.
func (r *Region) Avail() uint32 {
	r.Lock()
	defer r.Unlock()

	var n uint32

	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		n += e.Value.(*block).size
	}

	return n
}

// Reserve allocates a slice of bytes within the region with optional
// alignment, without copying any data into it (contents are undefined). The
// buffer is released with Release().
//
// The optional alignment must be a power of 2; an alignment of 0 selects
// word alignment (4).
func (r *Region) Reserve(size int, align int) (addr uint32, buf []byte) {
	if size <= 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b := r.alloc(uint32(size), uint32(align))
	b.res = true
	r.usedBlocks[b.addr] = b

	return b.addr, b.slice()
}

// Release frees a region previously returned by Reserve().
func (r *Region) Release(addr uint32) {
	r.freeBlock(addr, true)
}

// Alloc reserves a region and copies buf into it, returning the allocation
// address. The region is freed with Free().
func (r *Region) Alloc(buf []byte, align int) (addr uint32) {
	if len(buf) == 0 {
		return 0
	}

	r.Lock()
	defer r.Unlock()

	b := r.alloc(uint32(len(buf)), uint32(align))
	b.write(0, buf)
	r.usedBlocks[b.addr] = b

	return b.addr
}

// Free frees a region previously returned by Alloc().
func (r *Region) Free(addr uint32) {
	r.freeBlock(addr, false)
}

// Read copies size octets at offset off from the region address addr.
func (r *Region) Read(addr uint32, off int, buf []byte) {
	if addr == 0 || len(buf) == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		panic("dma: read of unallocated pointer")
	}

	if uint32(off+len(buf)) > b.size {
		panic(fmt.Sprintf("dma: invalid read parameters off=%d len=%d size=%d", off, len(buf), b.size))
	}

	b.read(uint32(off), buf)
}

// Write copies buf into the region at address addr, offset off.
func (r *Region) Write(addr uint32, off int, buf []byte) {
	if addr == 0 || len(buf) == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		return
	}

	if uint32(off+len(buf)) > b.size {
		panic(fmt.Sprintf("dma: invalid write parameters off=%d len=%d size=%d", off, len(buf), b.size))
	}

	b.write(uint32(off), buf)
}

func (r *Region) alloc(size uint32, align uint32) *block {
	var e *list.Element
	var freeBlock *block
	var pad uint32

	if align == 0 {
		align = 4
	}

	for e = r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		pad = uint32(-int32(b.addr)) & (align - 1)

		if b.size >= size+pad {
			freeBlock = b
			break
		}
	}

	if freeBlock == nil {
		panic("dma: out of memory")
	}

	defer r.freeBlocks.Remove(e)

	if pad != 0 {
		before := &block{addr: freeBlock.addr, size: pad}
		freeBlock.addr += pad
		freeBlock.size -= pad
		r.freeBlocks.InsertBefore(before, e)
	}

	if rem := freeBlock.size - size; rem != 0 {
		after := &block{addr: freeBlock.addr + size, size: rem}
		freeBlock.size = size
		r.freeBlocks.InsertAfter(after, e)
	}

	return freeBlock
}

func (r *Region) free(used *block) {
	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if b.addr > used.addr {
			r.freeBlocks.InsertBefore(used, e)
			r.defrag()
			return
		}
	}

	r.freeBlocks.PushBack(used)
	r.defrag()
}

func (r *Region) defrag() {
	var prev *block

	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if prev != nil && prev.addr+prev.size == b.addr {
			prev.size += b.size
			defer r.freeBlocks.Remove(e)
			continue
		}

		prev = b
	}
}

func (r *Region) freeBlock(addr uint32, res bool) {
	if addr == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]
	if !ok {
		return
	}

	if b.res != res {
		return
	}

	r.free(b)
	delete(r.usedBlocks, addr)
}

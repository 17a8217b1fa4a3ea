// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import (
	"encoding/binary"

	"github.com/usbarmory/netcore/pkg/dma"
	"github.com/usbarmory/netcore/pkg/reg"
)

// Common descriptor status bits (both variants), matching the legacy FEC
// buffer descriptor layout the basic variant uses directly and which the
// enhanced variant's first eight octets are wire-compatible with.
const (
	bdWrap  = 13
	bdLast  = 11

	bdRxEmpty = 15 // OWN: set = DMA-owned
	bdRxErrorSummary = 1 << 5 | 1<<4 | 1<<2 | 1<<1 | 1<<0

	bdTxReady = 15 // OWN: set = DMA-owned
	bdTxFirst = 12
	bdTxLast  = bdLast
	bdTxTC    = 10 // transmit CRC (append FCS)
)

// descSize is the on-wire size, in octets, of one descriptor of either
// variant; the extended variant reserves the trailing 24 octets for timestamp
// and checksum-offload fields this driver does not interpret but must
// still allocate room for.
func descSize(v Variant) int {
	if v == VariantExtended {
		return 32
	}
	return 8
}

// descriptor is an in-memory handle to one ring slot's wire-format bytes,
// shared by the basic and extended variants: only descSize changes between
// them, so a single accessor set covers both (§3 DmaDescriptor: "two
// variants (basic, extended-timestamp)").
type descriptor struct {
	raw  []byte // the descriptor's own octets, little-endian fields
	data []byte // the paired data region, addr-sized window
	addr uint32 // physical address of data, as written into buf_addr
}

func (d *descriptor) length() uint16 { return binary.LittleEndian.Uint16(d.raw[0:2]) }
func (d *descriptor) setLength(n uint16) {
	binary.LittleEndian.PutUint16(d.raw[0:2], n)
}

func (d *descriptor) status() uint16 { return binary.LittleEndian.Uint16(d.raw[2:4]) }
func (d *descriptor) setStatus(s uint16) {
	binary.LittleEndian.PutUint16(d.raw[2:4], s)
}

func (d *descriptor) bufAddr() uint32 { return binary.LittleEndian.Uint32(d.raw[4:8]) }
func (d *descriptor) setBufAddr(a uint32) {
	binary.LittleEndian.PutUint32(d.raw[4:8], a)
	d.addr = a
}

func (d *descriptor) own() bool {
	return d.status()&(1<<bdRxEmpty) != 0
}

func (d *descriptor) setOwn(ownedByDMA bool) {
	s := d.status()
	if ownedByDMA {
		s |= 1 << bdRxEmpty
	} else {
		s &^= 1 << bdRxEmpty
	}
	d.setStatus(s)
}

func (d *descriptor) errorSummary() bool {
	return d.status()&bdRxErrorSummary != 0
}

// ring is a fixed-size, head-to-tail-linked set of descriptors backed by
// one contiguous DMA allocation per direction (§4.2 "Descriptor-ring
// lifecycle").
type ring struct {
	descs     []*descriptor
	variant   Variant
	size      int
	dataSize  int
	descAddr  uint32 // physical base address of the ring's own descriptor memory

	current    int // index of the next descriptor to service
	completion int // index of the oldest not-yet-retired descriptor (tx only)
}

// newRxRing allocates n receive descriptors, each carrying a freshly
// obtained RxLarge data region, and marks every descriptor DMA-owned.
func newRxRing(region *dma.Region, n, align, dataSize int, v Variant, fill func() (uint32, []byte)) *ring {
	r := &ring{variant: v, size: n, dataSize: dataSize}

	dsz := descSize(v)
	descAddr, descMem := region.Reserve(n*dsz, align)
	r.descAddr = descAddr

	for i := 0; i < n; i++ {
		addr, data := fill()

		d := &descriptor{raw: descMem[i*dsz : i*dsz+dsz], data: data}
		d.setBufAddr(addr)
		d.setLength(uint16(dataSize))
		d.setOwn(true)

		if i == n-1 {
			d.setStatus(d.status() | 1<<bdWrap)
		}

		r.descs = append(r.descs, d)
	}

	return r
}

// newTxRing allocates n transmit descriptors, CPU-owned with null buffer
// addresses (§3 DmaDescriptor invariants).
func newTxRing(region *dma.Region, n, align int, v Variant) *ring {
	r := &ring{variant: v, size: n}

	dsz := descSize(v)
	descAddr, descMem := region.Reserve(n*dsz, align)
	r.descAddr = descAddr

	for i := 0; i < n; i++ {
		d := &descriptor{raw: descMem[i*dsz : i*dsz+dsz]}

		if i == n-1 {
			d.setStatus(1 << bdWrap)
		}

		r.descs = append(r.descs, d)
	}

	return r
}

func (r *ring) advance(i int) int {
	if i == r.size-1 {
		return 0
	}
	return i + 1
}

// baseAddr returns the physical address of the ring's own descriptor memory
// (what RDSR/TDSR must be programmed with), not any descriptor's paired
// data-buffer address.
func (r *ring) baseAddr() uint32 {
	return r.descAddr
}

// invalidateData invalidates the CPU data cache for a descriptor's data
// region after DMA has written it, so the worker task observes the fresh
// frame contents rather than a stale cache line (§4.2 rx(): "Invalidate CPU
// cache for the descriptor's range").
func invalidateData(d *descriptor) {
	reg.InvalidateRange(d.addr, len(d.data))
}

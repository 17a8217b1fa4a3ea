// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import (
	"hash/crc32"

	"github.com/usbarmory/netcore/pkg/bits"
	"github.com/usbarmory/netcore/pkg/reg"
)

// hashIndex computes the standard reflected Ethernet CRC32 of a 6-octet
// hardware address and returns its most significant 6 bits as a hash
// bucket index 0..63 (§4.2 addr_multicast_add/remove).
//
// hash/crc32's IEEE table already operates on the reflected polynomial, so
// the CRC it returns is itself bit-reversed relative to the non-reflected
// convention; bits.Reverse32 restores normal bit order before the top 6
// bits are extracted, matching the hardware's own bit-order convention for
// this field.
func hashIndex(hw [6]byte) int {
	crc := crc32.ChecksumIEEE(hw[:])
	reflected := bits.Reverse32(crc)
	return int(reflected >> 26)
}

// AddrMulticastAdd registers one more reference to hw's hash bucket,
// setting the bucket's hash-table bit on a 0->1 transition so that
// multiple protocol addresses sharing a bucket never prematurely disable
// reception (§4.2).
func (d *Driver) AddrMulticastAdd(hw [6]byte) {
	idx := hashIndex(hw)

	d.mcastMu.Lock()
	defer d.mcastMu.Unlock()

	d.mcastRefCount[idx]++
	if d.mcastRefCount[idx] == 1 {
		d.setHashBit(idx, true)
	}
}

// AddrMulticastRemove releases one reference to hw's hash bucket, clearing
// the bucket's hash-table bit on a 1->0 transition.
func (d *Driver) AddrMulticastRemove(hw [6]byte) {
	idx := hashIndex(hw)

	d.mcastMu.Lock()
	defer d.mcastMu.Unlock()

	if d.mcastRefCount[idx] == 0 {
		return
	}

	d.mcastRefCount[idx]--
	if d.mcastRefCount[idx] == 0 {
		d.setHashBit(idx, false)
	}
}

// setHashBit selects the high or low 32-bit hash-table register by bit 5
// of the index and the bit position within it by bits 0..4.
func (d *Driver) setHashBit(idx int, set bool) {
	addr := d.regs.GALR
	pos := idx & 0x1f

	if idx&0x20 != 0 {
		addr = d.regs.GAUR
	}

	reg.SetTo(addr, pos, set)
}

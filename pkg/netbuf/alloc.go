// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package netbuf

// Get returns a buffer whose data region is large enough to hold
// start_index + requested_size octets (§4.1). For Tx, the smallest
// sufficient pool is selected (small preferred when configured and
// sufficient, else large, else ErrInvalidSize). For Rx, RxLarge is always
// selected. The returned buffer's ref count is 1 and its header is
// initialized; the pool's in-use stat is bumped.
func (bp *BufferPool) Get(txn Transaction, requestedSize int, startIndex int, flags Flags) (*NetBuffer, error) {
	total := requestedSize + startIndex

	if bp.header == nil {
		return nil, ErrPoolNotConfigured
	}

	hdr, err := bp.header.get()
	if err != nil {
		return nil, err
	}

	t, reg, err := bp.reserve(txn, total)
	if err != nil {
		bp.header.put(hdr, true)
		return nil, err
	}

	hdr.pool = bp
	hdr.dt = bp.poolOf(t)
	hdr.Type = t
	hdr.data = reg.data
	hdr.addr = reg.addr
	hdr.Size = len(reg.data)
	hdr.head = 0
	hdr.dataLen = 0
	hdr.Flags = Used | flags
	hdr.ID = bp.nextID()
	hdr.IfNbr = bp.IfNbr
	hdr.refCount = 1

	return hdr, nil
}

// GetDataPtr performs the identical sizing and selection logic as Get but
// returns only the raw data region, with no paired header. It is the
// driver's entry point for obtaining a replacement Rx region; the caller
// must either attach a header later or release the region directly with
// FreeDataAreaRx.
func (bp *BufferPool) GetDataPtr(txn Transaction, requestedSize int, startIndex int) (addr uint32, data []byte, err error) {
	_, reg, err := bp.reserve(txn, requestedSize+startIndex)
	if err != nil {
		return 0, nil, err
	}
	return reg.addr, reg.data, nil
}

// WrapRxData attaches a header to a receive data region the driver detached
// directly from a descriptor (rather than one drawn fresh from the
// RxLarge free list), with dataLen valid octets starting at offset 0. It
// is the counterpart to GetDataPtr(Rx, ...): the driver calls GetDataPtr to
// obtain the descriptor's *replacement* region, and WrapRxData to hand the
// descriptor's *old*, now CPU-owned, region upward as a NetBuffer.
func (bp *BufferPool) WrapRxData(addr uint32, data []byte, dataLen int, flags Flags) (*NetBuffer, error) {
	if bp.header == nil || bp.rxLarge == nil {
		return nil, ErrPoolNotConfigured
	}

	hdr, err := bp.header.get()
	if err != nil {
		return nil, err
	}

	hdr.pool = bp
	hdr.dt = bp.rxLarge
	hdr.Type = RxLarge
	hdr.data = data
	hdr.addr = addr
	hdr.Size = len(data)
	hdr.head = 0
	hdr.dataLen = dataLen
	hdr.Flags = Used | flags
	hdr.ID = bp.nextID()
	hdr.IfNbr = bp.IfNbr
	hdr.refCount = 1

	return hdr, nil
}

func (bp *BufferPool) poolOf(t BufType) *dataPool {
	switch t {
	case RxLarge:
		return bp.rxLarge
	case TxLarge:
		return bp.txLarge
	case TxSmall:
		return bp.txSmall
	}
	return nil
}

// reserve implements the size-selection algorithm and performs the actual
// block reservation in one step, so that pool exhaustion (ErrNoneAvail) on
// the preferred small pool falls through to the large pool instead of
// failing outright: "unavailable" and "insufficient" are both reasons to
// try the next pool, but an outright size mismatch against every configured
// pool is ErrInvalidSize, distinct from either pool being merely empty.
func (bp *BufferPool) reserve(txn Transaction, total int) (BufType, *region, error) {
	if txn == Rx {
		if bp.rxLarge == nil {
			return 0, nil, ErrPoolNotConfigured
		}
		reg, err := bp.rxLarge.get()
		if err != nil {
			return 0, nil, err
		}
		return RxLarge, reg, nil
	}

	trySmall := bp.txSmall != nil && bp.txSmall.blockSize >= total
	tryLarge := bp.txLarge != nil && bp.txLarge.blockSize >= total

	if !trySmall && !tryLarge {
		return 0, nil, ErrInvalidSize
	}

	if trySmall {
		reg, err := bp.txSmall.get()
		if err == nil {
			return TxSmall, reg, nil
		}
		if !tryLarge {
			return 0, nil, err
		}
	}

	reg, err := bp.txLarge.get()
	if err != nil {
		return 0, nil, err
	}

	return TxLarge, reg, nil
}

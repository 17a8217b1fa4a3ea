// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import (
	"sync/atomic"

	"github.com/usbarmory/netcore/pkg/netbuf"
	"github.com/usbarmory/netcore/pkg/reg"
)

type txEntry struct {
	desc int
	buf  *netbuf.NetBuffer
}

// Tx places buf's data region into the next free Tx descriptor (§4.2
// tx()). It never blocks: a still-DMA-owned current descriptor returns
// ErrTxBusy immediately, and the caller is expected to retry once the
// deallocation queue signals a completion.
func (d *Driver) Tx(buf *netbuf.NetBuffer) error {
	data := buf.Data()

	if len(data) > pktSizeMax {
		return ErrTxTooLarge
	}

	d.mu.Lock()

	idx := d.tx.current
	desc := d.tx.descs[idx]

	if desc.own() {
		d.mu.Unlock()
		return ErrTxBusy
	}

	d.tx.current = d.tx.advance(idx)
	atomic.AddInt32(&d.txAvail, -1)

	// The descriptor points directly at the caller's own data region
	// (§3: "buf_addr: physical address of a data region owned by the
	// paired NetBuffer") rather than a preallocated Tx descriptor buffer:
	// no copy is needed, the DMA engine reads straight out of buf.
	desc.setBufAddr(buf.Addr())
	desc.data = buf.Raw()
	desc.setLength(uint16(len(data)))

	status := desc.status() &^ (1 << bdWrap)
	if idx == d.tx.size-1 {
		status |= 1 << bdWrap
	}
	status |= 1<<bdTxReady | 1<<bdTxFirst | 1<<bdTxLast | 1<<bdTxTC

	reg.FlushData()
	desc.setStatus(status)

	d.mu.Unlock()

	d.txTrack(idx, buf)

	reg.Barrier()
	reg.Write(d.regs.EIR, 1<<IrqTxBuf)
	reg.Set(d.regs.TDAR, 1)

	return nil
}

func (d *Driver) txTrack(idx int, buf *netbuf.NetBuffer) {
	d.txPendingMu.Lock()
	defer d.txPendingMu.Unlock()
	d.txPending[idx] = txEntry{desc: idx, buf: buf}
}

// isrTxDone walks the Tx ring from completion forward, retiring every
// descriptor the DMA engine has relinquished ownership of, posting its
// buffer to the deallocation queue, and signalling that one more
// descriptor is available (§4.2 isr(): "On Tx-done").
func (d *Driver) isrTxDone() {
	d.mu.Lock()
	idx := d.tx.completion
	cur := d.tx.current
	d.mu.Unlock()

	for idx != cur {
		d.mu.Lock()
		desc := d.tx.descs[idx]
		owned := desc.own()
		d.mu.Unlock()

		if owned {
			break
		}

		atomic.AddInt32(&d.txAvail, 1)
		d.postTxComplete(idx)

		idx = d.tx.advance(idx)
	}

	d.mu.Lock()
	d.tx.completion = idx
	d.mu.Unlock()
}

func (d *Driver) postTxComplete(idx int) {
	d.txPendingMu.Lock()
	entry, ok := d.txPending[idx]
	if ok {
		delete(d.txPending, idx)
	}
	d.txPendingMu.Unlock()

	if !ok || entry.buf == nil {
		return
	}

	if d.Dealloc != nil {
		d.Dealloc.Post(entry.buf)
	}
}

// postPendingTx posts every still-tracked Tx buffer to the deallocation
// queue regardless of transmission state, used by Stop (§4.2 stop()).
func (d *Driver) postPendingTx() {
	d.txPendingMu.Lock()
	pending := make([]txEntry, 0, len(d.txPending))
	for idx, e := range d.txPending {
		pending = append(pending, e)
		delete(d.txPending, idx)
	}
	d.txPendingMu.Unlock()

	if d.Dealloc == nil {
		return
	}

	for _, e := range pending {
		d.Dealloc.Post(e.buf)
	}
}

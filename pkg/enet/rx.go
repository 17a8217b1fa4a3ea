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

const crcLen = 4

// rxFrame services one receive descriptor (§4.2 rx()). The worker task
// calls it repeatedly after each wakeup signal until it returns ErrRxBusy;
// see runRxWorker for the loop that drains several ready descriptors off a
// single interrupt.
func (d *Driver) rxFrame() (*netbuf.NetBuffer, int, error) {
	d.mu.Lock()
	idx := d.rx.current
	desc := d.rx.descs[idx]

	if desc.own() {
		d.mu.Unlock()
		reg.Or(d.regs.EIMR, irqRxMask)
		return nil, 0, ErrRxBusy
	}

	length := int(desc.length())
	errSummary := desc.errorSummary()

	if errSummary || length-crcLen < pktSizeMin {
		d.rx.current = d.rx.advance(idx)
		d.rearmRxDescriptor(desc, idx)
		d.mu.Unlock()

		if errSummary {
			atomic.AddUint32(&d.Stats.RxErrorSummary, 1)
		} else {
			atomic.AddUint32(&d.Stats.RxUndersize, 1)
		}
		atomic.AddUint32(&d.Stats.RxDiscard, 1)

		return nil, 0, ErrRxDiscard
	}

	oldAddr, oldData := desc.addr, desc.data

	newAddr, newData, err := d.Pool.GetDataPtr(netbuf.Rx, d.cfg.RxBufSize, 0)
	if err != nil {
		// No replacement region available: the descriptor's current
		// region is reused in place and the frame is dropped, so the
		// ring never loses a slot.
		d.rx.current = d.rx.advance(idx)
		d.rearmRxDescriptor(desc, idx)
		d.mu.Unlock()

		atomic.AddUint32(&d.Stats.RxDiscard, 1)
		return nil, 0, ErrRxDiscard
	}

	invalidateData(desc)

	d.rx.current = d.rx.advance(idx)

	desc.data = newData
	d.rearmRxDescriptor(desc, idx)
	desc.setBufAddr(newAddr)

	next := d.rx.descs[d.rx.current]
	selfRearm := !next.own()

	d.mu.Unlock()

	reg.Barrier()
	reg.Set(d.regs.RDAR, 1)

	if selfRearm {
		d.signalRx()
	} else {
		reg.Or(d.regs.EIMR, irqRxMask)
	}

	buf, err := d.Pool.WrapRxData(oldAddr, oldData, length-crcLen, 0)
	if err != nil {
		return nil, 0, err
	}

	return buf, length - crcLen, nil
}

// rearmRxDescriptor rewrites the wrap bit (lost when setStatus overwrites
// the whole status word) and hands the descriptor back to DMA.
func (d *Driver) rearmRxDescriptor(desc *descriptor, idx int) {
	s := uint16(0)
	if idx == d.rx.size-1 {
		s |= 1 << bdWrap
	}
	desc.setLength(uint16(d.cfg.RxBufSize))
	desc.setStatus(s)
	desc.setOwn(true)
}

// signalRx wakes the Rx worker task, tracking whether a signal is already
// pending so that a burst of descriptors ready between worker iterations
// never loses a wakeup (§4.2 "Interrupt-to-task coordination").
func (d *Driver) signalRx() bool {
	select {
	case d.rxSignal <- struct{}{}:
		return true
	default:
		return false
	}
}

// isrRx handles rx-done and the {overflow, buffer-unavailable,
// process-stopped} interrupt group: it masks further Rx-related interrupts
// and signals the worker; if the signal fails because one is already
// pending, Rx-done alone is re-enabled so the next interrupt retries the
// signal (§4.2 isr()).
func (d *Driver) isrRx() {
	reg.Clear(d.regs.EIMR, IrqRxFrame)
	reg.Clear(d.regs.EIMR, IrqRxBuf)
	reg.Clear(d.regs.EIMR, IrqBabrRx)
	reg.Clear(d.regs.EIMR, IrqGraceful)

	if !d.signalRx() {
		reg.Set(d.regs.EIMR, IrqRxFrame)
	}
}

// runRxWorker is the single Rx worker task (§5 "Scheduling model"): it
// blocks on rxSignal, then drains ready descriptors by calling rxFrame()
// repeatedly until ErrRxBusy, handing each successfully classified buffer
// to RxHandler. It never holds the global network lock and must never be
// invoked from ISR context.
func (d *Driver) runRxWorker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.rxSignal:
		}

		for {
			buf, _, err := d.rxFrame()

			switch err {
			case nil:
				if d.RxHandler != nil {
					d.RxHandler(buf)
				} else {
					netbuf.Free(buf)
				}
				continue
			case ErrRxDiscard:
				continue
			case ErrRxBusy:
			}

			break
		}

		select {
		case <-d.ctx.Done():
			return
		default:
		}
	}
}

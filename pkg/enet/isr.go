// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import (
	"sync/atomic"

	"github.com/usbarmory/netcore/pkg/reg"
)

// Isr is the single entry point the platform interrupt vector calls for
// this controller instance. It never blocks and never acquires the global
// network lock (§5 "ISR context"): only bounded critical sections guard
// the ring cursors and counters it touches.
func (d *Driver) Isr() {
	status := reg.Read(d.regs.EIR)
	reg.Write(d.regs.EIR, status) // write-1-to-clear active sources

	if status&(1<<IrqBusError) != 0 {
		atomic.AddUint32(&d.Stats.FatalBusError, 1)
	}

	if status&irqTxMask != 0 {
		d.isrTxDone()
	}

	if status&irqRxMask != 0 {
		d.isrRx()
	}

	reg.Set(d.regs.EIMR, IrqBusError)
}

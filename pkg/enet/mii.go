// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import (
	"time"

	"github.com/usbarmory/netcore/pkg/bits"
	"github.com/usbarmory/netcore/pkg/reg"
)

// MII management-frame field positions within MMFR, IEEE 802.3-2008
// Clause 22, matching the layout the MSCR divisor bits must be preserved
// across (§4.2 mii_read/mii_write: "Compose the MII-address register value
// preserving the management-clock divisor bits").
const (
	mmfrST   = 30
	mmfrOP   = 28
	mmfrPA   = 23
	mmfrRA   = 18
	mmfrTA   = 16
	mmfrData = 0

	mmfrBusy = 23 // EIR_MII, polled after issuing a transaction
)

func mdioFrame(op, pa, ra int, data uint16) uint32 {
	var frame uint32
	bits.SetN(&frame, mmfrST, 0b11, mdioST)
	bits.SetN(&frame, mmfrOP, 0b11, uint32(op))
	bits.SetN(&frame, mmfrPA, 0x1f, uint32(pa))
	bits.SetN(&frame, mmfrRA, 0x1f, uint32(ra))
	bits.SetN(&frame, mmfrTA, 0b11, mdioTA)
	bits.SetN(&frame, mmfrData, 0xffff, uint32(data))
	return frame
}

// MiiRead/MiiWrite compose an MII transaction, preserving the already
// configured clock divisor bits in MSCR, and poll the MII-busy interrupt
// bit with a bounded timeout (§4.2 mii_read()/mii_write()).
func (d *Driver) MiiRead(phyAddr, regAddr int) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.mdioTransact(mdioOpRead, phyAddr, regAddr, 0)
}

func (d *Driver) MiiWrite(phyAddr, regAddr int, data uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.mdioTransact(mdioOpWrite, phyAddr, regAddr, data)
	return err
}

const (
	mdioOpRead  = 0b10
	mdioOpWrite = 0b01

	mdioST = 0b01
	mdioTA = 0b10
)

func (d *Driver) mdioTransact(op, pa, ra int, data uint16) (uint16, error) {
	timeout := d.cfg.MIITimeout
	if timeout == 0 {
		timeout = 10 * time.Millisecond
	}

	reg.Set(d.regs.EIR, mmfrBusy)

	frame := mdioFrame(op, pa, ra, data)
	reg.Write(d.regs.MMFR, frame)

	if !reg.WaitFor(timeout, d.regs.EIR, mmfrBusy, 1, 1) {
		if op == mdioOpRead {
			return 0, ErrTimeoutRegRead
		}
		return 0, ErrTimeoutRegWrite
	}

	reg.Set(d.regs.EIR, mmfrBusy)

	return uint16(reg.Read(d.regs.MMFR)), nil
}

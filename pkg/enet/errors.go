// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enet

import "errors"

var (
	// ErrInvalidCfg is returned by Init when the configuration fails
	// validation (buffer size/alignment/descriptor count constraints).
	ErrInvalidCfg = errors.New("enet: invalid configuration")

	// ErrTimeoutReset is returned when the MAC soft-reset bit fails to
	// clear within ResetTimeout.
	ErrTimeoutReset = errors.New("enet: timeout waiting for MAC reset")

	// ErrTimeoutRegRead, ErrTimeoutRegWrite are returned by MiiRead/MiiWrite
	// when the MII busy bit fails to clear within MIITimeout.
	ErrTimeoutRegRead  = errors.New("enet: timeout on MII register read")
	ErrTimeoutRegWrite = errors.New("enet: timeout on MII register write")

	// ErrRxBusy is returned by rxFrame() when the current descriptor is
	// still DMA-owned: not an error condition in the worker's loop, just
	// "no frame yet".
	ErrRxBusy = errors.New("enet: rx descriptor still DMA-owned")

	// ErrRxDiscard is returned by rxFrame() when the frame was discarded
	// (error-summary bit set, undersized, or no replacement region
	// available) after the descriptor was already advanced.
	ErrRxDiscard = errors.New("enet: rx frame discarded")

	// ErrTxBusy is returned by Tx() when the current Tx descriptor is
	// still DMA-owned; the caller is expected to retry once notified by
	// the deallocation queue.
	ErrTxBusy = errors.New("enet: tx descriptor still DMA-owned")

	// ErrTxTooLarge is returned by Tx() when the frame exceeds the
	// 1518-octet maximum frame length (pktSizeMax).
	ErrTxTooLarge = errors.New("enet: tx frame exceeds MTU")
)

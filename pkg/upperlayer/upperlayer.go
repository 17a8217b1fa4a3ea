// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package upperlayer defines the interface the link layer dispatches
// received frames through, and the per-interface dispatch table that binds
// a protocol tag to a handler (§6 "Upward", §9 "Dispatch to upper layers":
// "model each upper-layer handler as an interface with a single rx(buffer)
// method and store a dispatch table per interface").
package upperlayer

import (
	"fmt"
	"sync"

	"github.com/usbarmory/netcore/pkg/netbuf"
)

// Tag identifies a dispatchable upper-layer protocol. The link layer
// derives it from the Ethernet II EtherType or the 802.3 LLC/SNAP protocol
// type before looking up a handler.
type Tag int

const (
	IPv4 Tag = iota
	IPv6
	ARP
)

func (t Tag) String() string {
	switch t {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	case ARP:
		return "ARP"
	default:
		return "Unknown"
	}
}

// Handler is the single entry point every upper protocol layer exposes to
// the link layer. The link layer has already populated buf.Protocol before
// calling Rx, and the handler inherits the caller's single reference: if it
// wants to retain the buffer past return, it must call buf.Acquire() first.
type Handler interface {
	Rx(buf *netbuf.NetBuffer) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(buf *netbuf.NetBuffer) error

func (f HandlerFunc) Rx(buf *netbuf.NetBuffer) error { return f(buf) }

// Dispatcher stores one handler per protocol tag per interface number, and
// routes an incoming buffer to whichever handler is registered for its tag.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[int]map[Tag]Handler
}

// NewDispatcher returns an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[int]map[Tag]Handler)}
}

// Register binds handler to (ifNbr, tag), replacing any previous binding.
func (d *Dispatcher) Register(ifNbr int, tag Tag, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handlers[ifNbr] == nil {
		d.handlers[ifNbr] = make(map[Tag]Handler)
	}
	d.handlers[ifNbr][tag] = handler
}

// Dispatch looks up the handler registered for (ifNbr, tag) and invokes its
// Rx method with buf. It is the link layer's sole upward entry point
// (§4.3 receive path, final step).
func (d *Dispatcher) Dispatch(ifNbr int, tag Tag, buf *netbuf.NetBuffer) error {
	d.mu.RLock()
	h, ok := d.handlers[ifNbr][tag]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("upperlayer: no handler registered for if %d tag %s", ifNbr, tag)
	}

	return h.Rx(buf)
}

// TxDeallocator is the external transmit-deallocation task the device
// driver posts completed transmit regions to, from ISR-safe context
// (§6: "a tx_dealloc_post(data_region) entry point is provided by an
// external transmit-deallocation task; the driver calls it from ISR-safe
// context (non-blocking post)").
type TxDeallocator interface {
	// Post enqueues a completed transmit buffer for deallocation. It must
	// never block: an ISR-context caller relies on this being a bounded,
	// non-blocking send.
	Post(buf *netbuf.NetBuffer) bool
}

// ChanDeallocator implements TxDeallocator over a buffered channel, drained
// by an ordinary worker goroutine that calls netbuf.Free on each received
// buffer. Post is a non-blocking send: a full channel means the buffer is
// dropped from the deallocation queue and its lifetime reverts to whatever
// reference the driver itself still holds.
type ChanDeallocator struct {
	ch chan *netbuf.NetBuffer
}

// NewChanDeallocator creates a ChanDeallocator with the given queue depth.
func NewChanDeallocator(depth int) *ChanDeallocator {
	return &ChanDeallocator{ch: make(chan *netbuf.NetBuffer, depth)}
}

func (d *ChanDeallocator) Post(buf *netbuf.NetBuffer) bool {
	select {
	case d.ch <- buf:
		return true
	default:
		return false
	}
}

// Run drains the deallocation queue until ch is closed, freeing each
// buffer it receives. Intended to run as a single long-lived goroutine
// started alongside the device driver's worker tasks.
func (d *ChanDeallocator) Run() {
	for buf := range d.ch {
		netbuf.Free(buf)
	}
}

// Close shuts down the deallocation queue, causing Run to return once all
// queued buffers have been drained.
func (d *ChanDeallocator) Close() {
	close(d.ch)
}
